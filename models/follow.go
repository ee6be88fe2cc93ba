package models

import "time"

// Follow is a directed edge: UserID follows AuthorID. The composite unique
// index keeps at most one edge per ordered pair; duplicate inserts are
// resolved with ON CONFLICT DO NOTHING at the repository layer.
type Follow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_follow_user;index:idx_follow_pair,unique;not null" json:"user_id"`
	AuthorID  uint      `gorm:"index:idx_follow_author;index:idx_follow_pair,unique;not null" json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Follow) TableName() string { return "follows" }
