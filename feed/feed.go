package feed

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/shakdv/yatube/models"
)

var (
	// ErrNotFound marks an unknown group slug, username, post id or follow edge.
	ErrNotFound = errors.New("feed: not found")
	// ErrUnauthorized marks a scope that requires an authenticated viewer.
	ErrUnauthorized = errors.New("feed: unauthorized")
)

// DefaultPageSize is the number of posts per feed page when none is configured.
const DefaultPageSize = 10

// Page is one window of the ordered post sequence for a scope. Posts are
// fully materialized with Author and Group preloaded.
type Page struct {
	Posts      []models.Post
	Number     int
	PageSize   int
	Total      int64
	TotalPages int
	HasPrev    bool
	HasNext    bool
}

// ProfileFeed bundles the author page data: the author, their paginated
// posts, total post count and whether the viewer follows them.
type ProfileFeed struct {
	Author     models.User
	Page       *Page
	PostsCount int64
	Following  bool
}

// Builder produces ordered, paginated feeds for the four scopes. Ordering is
// created_at DESC with id DESC tie-break so pages are deterministic.
type Builder struct {
	db       *gorm.DB
	pageSize int
}

// NewBuilder creates a Builder with the given page size (DefaultPageSize
// when non-positive).
func NewBuilder(db *gorm.DB, pageSize int) *Builder {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Builder{db: db, pageSize: pageSize}
}

// PageSize returns the configured number of posts per page.
func (b *Builder) PageSize() int { return b.pageSize }

// Global returns a page of all posts regardless of group or author.
func (b *Builder) Global(ctx context.Context, page int) (*Page, error) {
	q := b.db.WithContext(ctx).Model(&models.Post{})
	return b.paginate(ctx, q, page)
}

// Group returns the group with the given slug and a page of its posts.
// Unknown slugs yield ErrNotFound.
func (b *Builder) Group(ctx context.Context, slug string, page int) (*models.Group, *Page, error) {
	var group models.Group
	if err := b.db.WithContext(ctx).Where("slug = ?", slug).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	q := b.db.WithContext(ctx).Model(&models.Post{}).Where("group_id = ?", group.ID)
	pg, err := b.paginate(ctx, q, page)
	if err != nil {
		return nil, nil, err
	}
	return &group, pg, nil
}

// Profile returns the author feed for the given username. viewerID zero
// means an anonymous viewer; Following is only computed for authenticated
// viewers. Unknown usernames yield ErrNotFound.
func (b *Builder) Profile(ctx context.Context, username string, viewerID uint, page int) (*ProfileFeed, error) {
	var author models.User
	if err := b.db.WithContext(ctx).Where("username = ?", username).First(&author).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	q := b.db.WithContext(ctx).Model(&models.Post{}).Where("author_id = ?", author.ID)
	pg, err := b.paginate(ctx, q, page)
	if err != nil {
		return nil, err
	}

	pf := &ProfileFeed{Author: author, Page: pg, PostsCount: pg.Total}
	if viewerID != 0 {
		var cnt int64
		if err := b.db.WithContext(ctx).Model(&models.Follow{}).
			Where("user_id = ? AND author_id = ?", viewerID, author.ID).
			Count(&cnt).Error; err != nil {
			return nil, err
		}
		pf.Following = cnt > 0
	}
	return pf, nil
}

// Following returns a page of posts whose authors the viewer follows.
// Requires an authenticated viewer.
func (b *Builder) Following(ctx context.Context, viewerID uint, page int) (*Page, error) {
	if viewerID == 0 {
		return nil, ErrUnauthorized
	}
	sub := b.db.Model(&models.Follow{}).Select("author_id").Where("user_id = ?", viewerID)
	q := b.db.WithContext(ctx).Model(&models.Post{}).Where("author_id IN (?)", sub)
	return b.paginate(ctx, q, page)
}

// paginate counts the scoped posts and materializes the requested page.
// Page numbers below 1 or beyond the last page return an empty page rather
// than an error; page 1 is always valid even when the scope has no posts.
func (b *Builder) paginate(ctx context.Context, q *gorm.DB, page int) (*Page, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	totalPages := int((total + int64(b.pageSize) - 1) / int64(b.pageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	pg := &Page{
		Number:     page,
		PageSize:   b.pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
	if page < 1 || page > totalPages {
		pg.Posts = []models.Post{}
		return pg, nil
	}

	if err := q.Session(&gorm.Session{}).
		Preload("Author").Preload("Group").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * b.pageSize).
		Limit(b.pageSize).
		Find(&pg.Posts).Error; err != nil {
		return nil, err
	}
	pg.HasPrev = page > 1
	pg.HasNext = page < totalPages && total > 0
	return pg, nil
}
