package model

import "time"

// UserContext tracks the rolling conversational state for a user:
// the topic last talked about and a free-form JSON blob of analysis data.
type UserContext struct {
	UserID       uint   `gorm:"primaryKey"`
	CurrentTopic string `gorm:"default:general"`
	ContextData  string `gorm:"default:'{}'"`
	LastQuery    string
	QueryCount   int64 `gorm:"default:0"`
	UpdatedAt    time.Time
}
