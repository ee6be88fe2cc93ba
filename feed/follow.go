package feed

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shakdv/yatube/models"
)

// FollowManager creates and removes follow edges. Creation is idempotent:
// duplicate follows and self-follows succeed without adding an edge.
type FollowManager struct {
	db *gorm.DB
}

// NewFollowManager creates a FollowManager over the given database.
func NewFollowManager(db *gorm.DB) *FollowManager {
	return &FollowManager{db: db}
}

// Follow ensures an edge follower -> author exists. Self-follow attempts are
// silently ignored. The composite unique index plus ON CONFLICT DO NOTHING
// keeps concurrent duplicate attempts down to a single edge.
func (m *FollowManager) Follow(ctx context.Context, followerID, authorID uint) error {
	if followerID == authorID {
		return nil
	}
	f := &models.Follow{UserID: followerID, AuthorID: authorID}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
}

// Unfollow removes the edge follower -> author. Returns ErrNotFound when no
// such edge exists.
func (m *FollowManager) Unfollow(ctx context.Context, followerID, authorID uint) error {
	res := m.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", followerID, authorID).
		Delete(&models.Follow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsFollowing reports whether the edge follower -> author exists.
func (m *FollowManager) IsFollowing(ctx context.Context, followerID, authorID uint) (bool, error) {
	var cnt int64
	if err := m.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", followerID, authorID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// FollowerCount returns how many users follow the given author.
func (m *FollowManager) FollowerCount(ctx context.Context, authorID uint) (int64, error) {
	var cnt int64
	err := m.db.WithContext(ctx).Model(&models.Follow{}).
		Where("author_id = ?", authorID).Count(&cnt).Error
	return cnt, err
}

// FollowingCount returns how many authors the given user follows.
func (m *FollowManager) FollowingCount(ctx context.Context, userID uint) (int64, error) {
	var cnt int64
	err := m.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ?", userID).Count(&cnt).Error
	return cnt, err
}
