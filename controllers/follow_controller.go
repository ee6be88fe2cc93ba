package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/feed"
	"github.com/shakdv/yatube/middleware"
	"github.com/shakdv/yatube/models"
)

// FollowController serves the following feed and the follow/unfollow
// actions. All routes behind it require an authenticated viewer.
type FollowController struct {
	db      *gorm.DB
	feeds   *feed.Builder
	follows *feed.FollowManager
}

// NewFollowController creates a new FollowController instance.
func NewFollowController(db *gorm.DB, feeds *feed.Builder, follows *feed.FollowManager) *FollowController {
	return &FollowController{db: db, feeds: feeds, follows: follows}
}

// FollowIndex renders the feed of posts by authors the viewer follows.
func (f *FollowController) FollowIndex(ctx *gin.Context) {
	viewerID, _ := middleware.UserID(ctx)
	page, err := f.feeds.Following(ctx.Request.Context(), viewerID, pageParam(ctx))
	if err != nil {
		if errors.Is(err, feed.ErrUnauthorized) {
			ctx.Redirect(http.StatusFound, middleware.LoginPath)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.HTML(http.StatusOK, "follow.html", htmlData(ctx, gin.H{
		"title": "My subscriptions",
		"page":  page,
	}))
}

// ProfileFollow creates the follow edge viewer -> author and returns to the
// author's profile. Following yourself or an author you already follow is a
// silent no-op.
func (f *FollowController) ProfileFollow(ctx *gin.Context) {
	author, ok := f.lookupAuthor(ctx)
	if !ok {
		return
	}
	viewerID, _ := middleware.UserID(ctx)
	if err := f.follows.Follow(ctx.Request.Context(), viewerID, author.ID); err != nil {
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.Redirect(http.StatusFound, "/profile/"+author.Username)
}

// ProfileUnfollow removes the follow edge viewer -> author. A missing edge
// is a 404, matching the unknown-resource semantics of the other pages.
func (f *FollowController) ProfileUnfollow(ctx *gin.Context) {
	author, ok := f.lookupAuthor(ctx)
	if !ok {
		return
	}
	viewerID, _ := middleware.UserID(ctx)
	if err := f.follows.Unfollow(ctx.Request.Context(), viewerID, author.ID); err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			renderNotFound(ctx)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.Redirect(http.StatusFound, "/profile/"+author.Username)
}

func (f *FollowController) lookupAuthor(ctx *gin.Context) (*models.User, bool) {
	var author models.User
	if err := f.db.Where("username = ?", ctx.Param("username")).First(&author).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx)
			return nil, false
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return nil, false
	}
	return &author, true
}
