package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aarizkhan-lorem/HDNotes/internal/config"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/metrics"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 实现邮件通知。
type EmailNotifier struct {
	cfg         *config.EmailConfig
	frontendURL string
	logger      *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, frontendURL string, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:         cfg,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// SendOTPEmail 发送邮箱验证码。
func (n *EmailNotifier) SendOTPEmail(toEmail, name, code string) error {
	if err := n.send(toEmail, "Verify Your HD Notes Account - OTP Code", n.buildOTPBody(name, code)); err != nil {
		metrics.EmailSendTotal.WithLabelValues("otp", "error").Inc()
		return err
	}
	metrics.EmailSendTotal.WithLabelValues("otp", "ok").Inc()
	n.logger.Info("verification email sent", slog.String("to", toEmail))
	return nil
}

// SendWelcomeEmail 发送欢迎邮件。
func (n *EmailNotifier) SendWelcomeEmail(toEmail, name string) error {
	if err := n.send(toEmail, "Welcome to HD Notes! 🎉", n.buildWelcomeBody(name)); err != nil {
		metrics.EmailSendTotal.WithLabelValues("welcome", "error").Inc()
		return err
	}
	metrics.EmailSendTotal.WithLabelValues("welcome", "ok").Inc()
	n.logger.Info("welcome email sent", slog.String("to", toEmail))
	return nil
}

func (n *EmailNotifier) send(toEmail, subject, body string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (n *EmailNotifier) buildOTPBody(name, code string) string {
	template := `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8" />
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background: #3B82F6; color: white; padding: 20px; text-align: center; border-radius: 10px 10px 0 0; }
  .content { background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px; }
  .otp-code { background: #fff; border: 2px solid #3B82F6; padding: 20px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 3px; margin: 20px 0; border-radius: 10px; }
  .footer { text-align: center; margin-top: 20px; color: #666; font-size: 14px; }
</style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>🔐 HD Notes Verification</h1></div>
    <div class="content">
      <h2>Hello %s!</h2>
      <p>Welcome to HD Notes! Please verify your email address to complete your registration.</p>
      <p>Your verification code is:</p>
      <div class="otp-code">%s</div>
      <p>This code will expire in 10 minutes. If you didn't request this verification, please ignore this email.</p>
      <p>Thank you for choosing HD Notes!</p>
    </div>
    <div class="footer"><p>&copy; 2024 HD Notes. All rights reserved.</p></div>
  </div>
</body>
</html>`
	return fmt.Sprintf(template, name, code)
}

func (n *EmailNotifier) buildWelcomeBody(name string) string {
	template := `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8" />
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background: linear-gradient(135deg, #3B82F6, #1D4ED8); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
  .content { background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px; }
  .button { display: inline-block; background: #3B82F6; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin: 20px 0; }
  .footer { text-align: center; margin-top: 20px; color: #666; font-size: 14px; }
</style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>🎉 Welcome to HD Notes!</h1></div>
    <div class="content">
      <h2>Hello %s!</h2>
      <p>Your account has been successfully verified! You can now start using HD Notes to organize your thoughts and ideas.</p>
      <p>Features you can enjoy:</p>
      <ul>
        <li>📝 Create and manage notes</li>
        <li>🔒 Secure cloud storage</li>
        <li>📱 Access from any device</li>
        <li>🎨 Rich text formatting</li>
      </ul>
      <a href="%s/signin" class="button">Start Taking Notes</a>
      <p>If you have any questions, feel free to reach out to our support team.</p>
    </div>
    <div class="footer"><p>&copy; 2024 HD Notes. All rights reserved.</p></div>
  </div>
</body>
</html>`
	return fmt.Sprintf(template, name, n.frontendURL)
}
