package model

import "time"

// User stores Telegram user metadata and activity counters.
// Users are never hard-deleted; Status flips to "inactive" instead.
type User struct {
	ID            uint  `gorm:"primaryKey"`
	TelegramID    int64 `gorm:"uniqueIndex"`
	FirstName     string
	LastName      string
	Username      string
	LanguageCode  string
	TotalMessages int64  `gorm:"default:0"`
	Status        string `gorm:"default:active"`
	LastActive    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
