package models

import "time"

// Post is a blog entry. AuthorID is immutable after creation; GroupID and
// Image are optional. Feed order is created_at DESC with id DESC tie-break.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	GroupID   *uint     `gorm:"index" json:"group_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Image     string    `gorm:"size:512" json:"image"` // public URL like /static/uploads/...
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Author    User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Group     *Group    `json:"group,omitempty"`
	Comments  []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}
