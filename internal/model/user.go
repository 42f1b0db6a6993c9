package model

import "time"

// User 表示系统用户。
type User struct {
	ID          uint      `gorm:"primaryKey"`                    // 用户 ID
	Name        string    `gorm:"type:varchar(64);not null"`     // 用户名
	Email       string    `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password    string    `gorm:"not null"`                      // bcrypt 哈希
	DateOfBirth time.Time // 出生日期
	IsVerified  bool      `gorm:"default:false"` // 邮箱是否已验证

	VerifyTokenHash      string     `gorm:"type:varchar(64)"` // 验证码的 SHA-256 哈希（hex），空表示当前无待验证的验证码
	VerifyTokenExpiresAt *time.Time // 验证码过期时间

	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Notes []Note `gorm:"foreignKey:UserID"`
}
