package models

import "time"

// UploadedFile records a stored post image. ExpireAt is set while the upload
// is not yet attached to a post; the cleaner purges records past that time.
// Attaching an image to a post clears ExpireAt and makes it permanent.
type UploadedFile struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	FilePath  string     `gorm:"size:1024;not null" json:"file_path"` // absolute or relative filesystem path
	URL       string     `gorm:"size:1024;not null" json:"url"`       // public URL like /static/uploads/...
	ExpireAt  *time.Time `gorm:"index" json:"expire_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
