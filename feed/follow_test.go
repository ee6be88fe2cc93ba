package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/models"
)

func followEdgeCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var cnt int64
	require.NoError(t, db.Model(&models.Follow{}).Count(&cnt).Error)
	return cnt
}

func TestFollowIsIdempotent(t *testing.T) {
	db := setupFeedDB(t)
	viewer := createUser(t, db, "PetrPetrov")
	author := createUser(t, db, "IvanIvanov")

	fm := NewFollowManager(db)
	ctx := context.Background()

	require.NoError(t, fm.Follow(ctx, viewer.ID, author.ID))
	require.NoError(t, fm.Follow(ctx, viewer.ID, author.ID))

	assert.Equal(t, int64(1), followEdgeCount(t, db))

	ok, err := fm.IsFollowing(ctx, viewer.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSelfFollowCreatesNoEdge(t *testing.T) {
	db := setupFeedDB(t)
	u := createUser(t, db, "IvanIvanov")

	fm := NewFollowManager(db)
	ctx := context.Background()

	require.NoError(t, fm.Follow(ctx, u.ID, u.ID))
	assert.Equal(t, int64(0), followEdgeCount(t, db))

	ok, err := fm.IsFollowing(ctx, u.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnfollowWithoutEdge(t *testing.T) {
	db := setupFeedDB(t)
	viewer := createUser(t, db, "PetrPetrov")
	author := createUser(t, db, "IvanIvanov")

	fm := NewFollowManager(db)
	err := fm.Unfollow(context.Background(), viewer.ID, author.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnfollowRemovesExactlyOneEdge(t *testing.T) {
	db := setupFeedDB(t)
	viewer := createUser(t, db, "PetrPetrov")
	ivan := createUser(t, db, "IvanIvanov")
	olga := createUser(t, db, "OlgaOrlova")

	fm := NewFollowManager(db)
	ctx := context.Background()

	require.NoError(t, fm.Follow(ctx, viewer.ID, ivan.ID))
	require.NoError(t, fm.Follow(ctx, viewer.ID, olga.ID))
	require.Equal(t, int64(2), followEdgeCount(t, db))

	require.NoError(t, fm.Unfollow(ctx, viewer.ID, ivan.ID))
	assert.Equal(t, int64(1), followEdgeCount(t, db))

	// The remaining edge is untouched.
	ok, err := fm.IsFollowing(ctx, viewer.ID, olga.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second unfollow of the same pair has nothing to remove.
	assert.ErrorIs(t, fm.Unfollow(ctx, viewer.ID, ivan.ID), ErrNotFound)
}

func TestFollowCounts(t *testing.T) {
	db := setupFeedDB(t)
	ivan := createUser(t, db, "IvanIvanov")
	petr := createUser(t, db, "PetrPetrov")
	olga := createUser(t, db, "OlgaOrlova")

	fm := NewFollowManager(db)
	ctx := context.Background()

	require.NoError(t, fm.Follow(ctx, petr.ID, ivan.ID))
	require.NoError(t, fm.Follow(ctx, olga.ID, ivan.ID))
	require.NoError(t, fm.Follow(ctx, petr.ID, olga.ID))

	followers, err := fm.FollowerCount(ctx, ivan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), followers)

	following, err := fm.FollowingCount(ctx, petr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), following)
}
