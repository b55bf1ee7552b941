package model

import "time"

// File categories used for on-disk layout and filtering.
const (
	FileTypePDF      = "pdf"
	FileTypeImage    = "image"
	FileTypeDocument = "document"
	FileTypeAudio    = "audio"
	FileTypeVideo    = "video"
	FileTypeOther    = "other"
)

// File records an uploaded file. The original name is kept for display
// and search; Path points at the renamed copy inside the category dir.
// Deletion is soft: IsActive flips to false, the row stays.
type File struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index"`
	Filename    string
	Path        string
	Type        string `gorm:"index"`
	Size        int64
	Description string
	Tags        string `gorm:"default:'[]'"` // JSON array of strings
	IsActive    bool   `gorm:"default:true"`
	CreatedAt   time.Time
}
