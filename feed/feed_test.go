package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shakdv/yatube/models"
)

func setupFeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Group{}, &models.Post{},
		&models.Comment{}, &models.Follow{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createGroup(t *testing.T, db *gorm.DB, title, slug string) *models.Group {
	t.Helper()
	g := &models.Group{Title: title, Slug: slug, Description: "test group"}
	require.NoError(t, db.Create(g).Error)
	return g
}

func createPost(t *testing.T, db *gorm.DB, author *models.User, group *models.Group, text string, createdAt time.Time) *models.Post {
	t.Helper()
	p := &models.Post{AuthorID: author.ID, Text: text, CreatedAt: createdAt}
	if group != nil {
		p.GroupID = &group.ID
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestGroupFeedReturnsOnlyGroupPosts(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "auth")
	cats := createGroup(t, db, "Cats", "cats")
	dogs := createGroup(t, db, "Dogs", "dogs")

	now := time.Now()
	createPost(t, db, author, cats, "a cat post", now)
	createPost(t, db, author, dogs, "a dog post", now.Add(time.Second))
	createPost(t, db, author, nil, "a groupless post", now.Add(2*time.Second))

	b := NewBuilder(db, 10)
	group, page, err := b.Group(context.Background(), "cats", 1)
	require.NoError(t, err)
	assert.Equal(t, "Cats", group.Title)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "a cat post", page.Posts[0].Text)
	for _, p := range page.Posts {
		require.NotNil(t, p.GroupID)
		assert.Equal(t, cats.ID, *p.GroupID)
	}
}

func TestGroupFeedUnknownSlug(t *testing.T) {
	db := setupFeedDB(t)
	b := NewBuilder(db, 10)

	_, _, err := b.Group(context.Background(), "no-such-slug", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGlobalFeedOrderingAndTieBreak(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "auth")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := createPost(t, db, author, nil, "old", base)
	tieA := createPost(t, db, author, nil, "tie-a", base.Add(time.Hour))
	tieB := createPost(t, db, author, nil, "tie-b", base.Add(time.Hour))

	b := NewBuilder(db, 10)
	page, err := b.Global(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)

	// Same timestamp: the higher id comes first.
	assert.Equal(t, tieB.ID, page.Posts[0].ID)
	assert.Equal(t, tieA.ID, page.Posts[1].ID)
	assert.Equal(t, old.ID, page.Posts[2].ID)
}

func TestPaginationBoundaries(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "auth")

	const pageSize = 10
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < pageSize+3; i++ {
		createPost(t, db, author, nil, fmt.Sprintf("post #%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	b := NewBuilder(db, pageSize)
	ctx := context.Background()

	page1, err := b.Global(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, page1.Posts, pageSize)
	assert.False(t, page1.HasPrev)
	assert.True(t, page1.HasNext)
	assert.Equal(t, 2, page1.TotalPages)
	assert.Equal(t, int64(pageSize+3), page1.Total)

	page2, err := b.Global(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Posts, 3)
	assert.True(t, page2.HasPrev)
	assert.False(t, page2.HasNext)

	// Beyond the last page and below the first: empty, never an error.
	page3, err := b.Global(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, page3.Posts)
	assert.False(t, page3.HasPrev)
	assert.False(t, page3.HasNext)

	page0, err := b.Global(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, page0.Posts)
}

func TestPageOneValidWithoutPosts(t *testing.T) {
	db := setupFeedDB(t)
	b := NewBuilder(db, 10)

	page, err := b.Global(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasPrev)
	assert.False(t, page.HasNext)
}

func TestProfileFeed(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "IvanIvanov")
	other := createUser(t, db, "PetrPetrov")
	now := time.Now()
	createPost(t, db, author, nil, "mine", now)
	createPost(t, db, other, nil, "not mine", now)

	b := NewBuilder(db, 10)
	pf, err := b.Profile(context.Background(), "IvanIvanov", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "IvanIvanov", pf.Author.Username)
	assert.Equal(t, int64(1), pf.PostsCount)
	require.Len(t, pf.Page.Posts, 1)
	assert.Equal(t, "mine", pf.Page.Posts[0].Text)
	assert.False(t, pf.Following)
}

func TestProfileUnknownUsername(t *testing.T) {
	db := setupFeedDB(t)
	b := NewBuilder(db, 10)

	_, err := b.Profile(context.Background(), "nobody", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileFollowingFlag(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "IvanIvanov")
	viewer := createUser(t, db, "PetrPetrov")

	b := NewBuilder(db, 10)
	fm := NewFollowManager(db)
	ctx := context.Background()

	pf, err := b.Profile(ctx, "IvanIvanov", viewer.ID, 1)
	require.NoError(t, err)
	assert.False(t, pf.Following)

	require.NoError(t, fm.Follow(ctx, viewer.ID, author.ID))
	pf, err = b.Profile(ctx, "IvanIvanov", viewer.ID, 1)
	require.NoError(t, err)
	assert.True(t, pf.Following)
}

func TestFollowingFeedMembership(t *testing.T) {
	db := setupFeedDB(t)
	author := createUser(t, db, "IvanIvanov")
	viewer := createUser(t, db, "PetrPetrov")
	createPost(t, db, author, nil, "X", time.Now())

	b := NewBuilder(db, 10)
	fm := NewFollowManager(db)
	ctx := context.Background()

	// Not following yet: the feed is empty.
	page, err := b.Following(ctx, viewer.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	require.NoError(t, fm.Follow(ctx, viewer.ID, author.ID))
	page, err = b.Following(ctx, viewer.ID, 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "X", page.Posts[0].Text)

	require.NoError(t, fm.Unfollow(ctx, viewer.ID, author.ID))
	page, err = b.Following(ctx, viewer.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}

func TestFollowingFeedRequiresViewer(t *testing.T) {
	db := setupFeedDB(t)
	b := NewBuilder(db, 10)

	_, err := b.Following(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
