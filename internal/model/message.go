package model

import "time"

// Message senders.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is one entry in a user's conversation history.
// Messages are immutable once written; retention is handled by a
// periodic cleanup job, not by mutation.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index"`
	Text      string `gorm:"column:text"`
	Sender    string `gorm:"index"`
	Type      string `gorm:"default:text"`
	CreatedAt time.Time
}
