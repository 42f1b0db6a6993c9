package model

import "time"

// Note 表示一条用户笔记。
//
// 笔记归属于单个用户（一对多），列表查询按 (user_id, created_at) 组合索引排序。
type Note struct {
	ID        uint      `gorm:"primaryKey"` // 笔记唯一标识
	CreatedAt time.Time `gorm:"index:idx_notes_user_created,priority:2"` // 创建时间
	UpdatedAt time.Time // 更新时间

	UserID  uint   `gorm:"not null;index:idx_notes_user_created,priority:1"` // 所属用户 ID
	User    User   `gorm:"foreignKey:UserID"`                                // 所属用户
	Title   string `gorm:"type:varchar(100);not null"`                       // 标题（最长 100 字符）
	Content string `gorm:"type:text;not null"`                               // 正文（最长 5000 字符，应用层校验）
}
