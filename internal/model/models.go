package model

import (
	"time"
)

// Question 表示一个提问。
//
// 提问归属于创建它的用户；IsPublic 控制非所有者是否可见。
// 提问与回答是一对多关系，Answer.QuestionID 是唯一的权威关联，
// 删除提问时必须在同一事务内级联删除其全部回答。
type Question struct {
	ID        uint      `gorm:"primaryKey"` // 提问唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Title       string `gorm:"type:varchar(100);not null"` // 标题（最长 100 字符）
	Description string `gorm:"type:text;not null"`         // 正文描述
	IsPublic    bool   `gorm:"default:true"`               // 是否公开可见

	UserID uint `gorm:"not null;index"` // 所有者用户 ID
	User   User `gorm:"foreignKey:UserID"`

	Answers []Answer `gorm:"foreignKey:QuestionID"` // 关联的回答列表
}

// Answer 表示对某个提问的回答。
//
// 同一提问下最多只有一条回答的 IsAccepted 为 true。
type Answer struct {
	ID        uint      `gorm:"primaryKey"` // 回答唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Content    string `gorm:"type:text;not null"` // 回答内容
	IsAccepted bool   `gorm:"default:false"`      // 是否被提问者采纳

	QuestionID uint     `gorm:"not null;index"` // 所属提问 ID
	Question   Question `gorm:"foreignKey:QuestionID"`

	UserID uint `gorm:"not null;index"` // 回答者用户 ID
	User   User `gorm:"foreignKey:UserID"`
}
