package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/feed"
	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/utils"
)

// APIController exposes a read-only JSON view of the feeds for external
// consumers. Responses are cached with the same short-TTL policy as the
// rendered pages.
type APIController struct {
	db    *gorm.DB
	feeds *feed.Builder
	cache *utils.PageCache
}

// NewAPIController creates a new APIController instance.
func NewAPIController(db *gorm.DB, feeds *feed.Builder, cache *utils.PageCache) *APIController {
	return &APIController{db: db, feeds: feeds, cache: cache}
}

// ListPosts returns a paginated page of the global feed as JSON.
func (a *APIController) ListPosts(ctx *gin.Context) {
	key := ctx.Request.URL.RequestURI()
	if b, ok := a.cache.Get(key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	page, err := a.feeds.Global(ctx.Request.Context(), pageParam(ctx))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list posts")
		return
	}

	payload := gin.H{
		"items": page.Posts,
		"pagination": gin.H{
			"page":        page.Number,
			"page_size":   page.PageSize,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	}
	a.cacheAndRespond(ctx, key, payload)
}

// ListGroupPosts returns a page of a group's feed as JSON; unknown slugs 404.
func (a *APIController) ListGroupPosts(ctx *gin.Context) {
	key := ctx.Request.URL.RequestURI()
	if b, ok := a.cache.Get(key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	group, page, err := a.feeds.Group(ctx.Request.Context(), ctx.Param("slug"), pageParam(ctx))
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40405, "group not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list group posts")
		return
	}

	payload := gin.H{
		"group": group,
		"items": page.Posts,
		"pagination": gin.H{
			"page":        page.Number,
			"page_size":   page.PageSize,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	}
	a.cacheAndRespond(ctx, key, payload)
}

// GetPost returns a single post with comments as JSON.
func (a *APIController) GetPost(ctx *gin.Context) {
	postID := ctx.Param("id")
	key := ctx.Request.URL.RequestURI()
	if b, ok := a.cache.Get(key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var post models.Post
	if err := a.db.Preload("Author").Preload("Group").First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return
	}

	// Load comments separately with their authors loaded in one query.
	var comments []models.Comment
	if err := a.db.Where("post_id = ?", post.ID).Order("created_at ASC, id ASC").Find(&comments).Error; err == nil {
		var authorIDs []uint
		for _, c := range comments {
			authorIDs = append(authorIDs, c.AuthorID)
		}
		authorIDs = utils.UniqueUint(authorIDs)

		if len(authorIDs) > 0 {
			var users []models.User
			if err := a.db.Find(&users, authorIDs).Error; err == nil {
				userMap := make(map[uint]models.User, len(users))
				for _, u := range users {
					userMap[u.ID] = u
				}
				for i := range comments {
					if u, ok := userMap[comments[i].AuthorID]; ok {
						comments[i].Author = u
					}
				}
			}
		}
		post.Comments = comments
	} else {
		utils.Sugar.Warnf("failed to load comments for post %s: %v", postID, err)
	}

	a.cacheAndRespond(ctx, key, gin.H{"post": post})
}

// cacheAndRespond writes the standard envelope and stores the exact bytes
// that were sent, so cache hits are byte-identical.
func (a *APIController) cacheAndRespond(ctx *gin.Context, key string, payload gin.H) {
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	b, err := json.Marshal(wrapper)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, fmt.Sprintf("failed to encode response: %v", err))
		return
	}
	a.cache.Put(key, b)
	ctx.Data(http.StatusOK, "application/json", b)
}
