package notify

// Notifier 定义邮件通知接口。
type Notifier interface {
	// SendOTPEmail 发送邮箱验证码邮件。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   name: 用户名（用于邮件称呼）
	//   code: 验证码明文（只经由邮件通道传输，不落库）
	SendOTPEmail(toEmail, name, code string) error

	// SendWelcomeEmail 发送验证成功后的欢迎邮件。
	SendWelcomeEmail(toEmail, name string) error
}
