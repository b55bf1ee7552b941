package model

import "time"

// Group is a Telegram group or supergroup the bot has been added to.
type Group struct {
	ID          uint  `gorm:"primaryKey"`
	TelegramID  int64 `gorm:"uniqueIndex"`
	Title       string
	Type        string
	AdminUserID int64
	IsActive    bool `gorm:"default:true"`
	CreatedAt   time.Time
}

// GroupMember links a user to a group. Re-joining reactivates the row.
type GroupMember struct {
	ID       uint  `gorm:"primaryKey"`
	GroupID  int64 `gorm:"index:idx_group_member,unique"`
	UserID   uint  `gorm:"index:idx_group_member,unique"`
	Role     string `gorm:"default:member"`
	IsActive bool   `gorm:"default:true"`
	JoinedAt time.Time
}
