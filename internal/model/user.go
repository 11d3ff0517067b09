package model

import "time"

// User 表示系统用户。
//
// Role 在创建后不再变更；封禁/解封由管理员随时切换。
type User struct {
	ID          uint      `gorm:"primaryKey"`                      // 用户 ID
	Name        string    `gorm:"type:varchar(64);not null"`       // 显示名
	Email       string    `gorm:"type:varchar(191);uniqueIndex"`   // 邮箱（唯一）
	Password    string    `gorm:"not null"`                        // bcrypt 哈希
	Role        string    `gorm:"type:varchar(16);default:member"` // 角色: member / admin
	IsBlocked   bool      `gorm:"default:false"`                   // 是否被封禁
	BlockReason string    `gorm:"type:varchar(255)"`               // 封禁原因（可空）
	CreatedAt   time.Time // 创建时间

	Questions []Question `gorm:"foreignKey:UserID"`
	Answers   []Answer   `gorm:"foreignKey:UserID"`
}
