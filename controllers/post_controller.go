package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/feed"
	"github.com/shakdv/yatube/middleware"
	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/utils"
)

// maxImageSize limits uploaded post images.
const maxImageSize = 10 * 1024 * 1024

var allowedImageExts = map[string]bool{
	".gif":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// PostController serves the HTML feed pages and post create/edit/comment
// actions.
type PostController struct {
	db    *gorm.DB
	feeds *feed.Builder
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, feeds *feed.Builder) *PostController {
	return &PostController{db: db, feeds: feeds}
}

// Index renders the global feed. The page cache middleware wraps this
// handler, so within the TTL repeated requests never reach it.
func (p *PostController) Index(ctx *gin.Context) {
	page, err := p.feeds.Global(ctx.Request.Context(), pageParam(ctx))
	if err != nil {
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.HTML(http.StatusOK, "index.html", htmlData(ctx, gin.H{
		"title": "Latest updates on the site",
		"page":  page,
	}))
}

// GroupPosts renders the feed of a single group; unknown slugs are 404.
func (p *PostController) GroupPosts(ctx *gin.Context) {
	slug := ctx.Param("slug")
	group, page, err := p.feeds.Group(ctx.Request.Context(), slug, pageParam(ctx))
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			renderNotFound(ctx)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.HTML(http.StatusOK, "group_list.html", htmlData(ctx, gin.H{
		"title": "Posts of community " + group.Title,
		"group": group,
		"page":  page,
	}))
}

// Profile renders an author's feed together with the viewer's follow state.
func (p *PostController) Profile(ctx *gin.Context) {
	username := ctx.Param("username")
	viewerID, _ := middleware.UserID(ctx)

	pf, err := p.feeds.Profile(ctx.Request.Context(), username, viewerID, pageParam(ctx))
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			renderNotFound(ctx)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}
	ctx.HTML(http.StatusOK, "profile.html", htmlData(ctx, gin.H{
		"title":       "Profile of " + pf.Author.FullName(),
		"author":      pf.Author,
		"page":        pf.Page,
		"posts_count": pf.PostsCount,
		"following":   pf.Following,
		"is_self":     viewerID != 0 && viewerID == pf.Author.ID,
	}))
}

// PostDetail renders a single post with its comments and the comment form.
func (p *PostController) PostDetail(ctx *gin.Context) {
	var post models.Post
	err := p.db.Preload("Author").Preload("Group").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Comments.Author").
		First(&post, "id = ?", ctx.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}

	viewerID, _ := middleware.UserID(ctx)
	ctx.HTML(http.StatusOK, "post_detail.html", htmlData(ctx, gin.H{
		"title":     "Post " + truncate(post.Text, 30),
		"post":      post,
		"comments":  post.Comments,
		"is_author": viewerID != 0 && viewerID == post.AuthorID,
	}))
}

// PostCreateForm renders the empty create form.
func (p *PostController) PostCreateForm(ctx *gin.Context) {
	p.renderPostForm(ctx, nil, "")
}

// PostCreate handles the create form submission. On success the author is
// redirected to their profile.
func (p *PostController) PostCreate(ctx *gin.Context) {
	text := utils.Sanitize(strings.TrimSpace(ctx.PostForm("text")))
	groupID, groupErr := p.parseGroupField(ctx)

	if text == "" || groupErr != nil {
		draft := &models.Post{Text: text, GroupID: groupID}
		p.renderPostForm(ctx, draft, formError(text, groupErr))
		return
	}

	viewerID, ok := middleware.UserID(ctx)
	if !ok {
		ctx.Redirect(http.StatusFound, middleware.LoginPath)
		return
	}

	imageURL, imgErr := p.saveImage(ctx, viewerID)
	if imgErr != nil {
		draft := &models.Post{Text: text, GroupID: groupID}
		p.renderPostForm(ctx, draft, imgErr.Error())
		return
	}

	post := models.Post{
		AuthorID: viewerID,
		GroupID:  groupID,
		Text:     text,
		Image:    imageURL,
	}
	if err := p.db.Create(&post).Error; err != nil {
		p.renderPostForm(ctx, &post, "failed to save the post, please retry")
		return
	}
	p.markImageAttached(imageURL)

	username, _ := middleware.Username(ctx)
	ctx.Redirect(http.StatusFound, "/profile/"+username)
}

// PostEditForm renders the edit form for the author; everyone else is sent
// back to the post detail page.
func (p *PostController) PostEditForm(ctx *gin.Context) {
	post, redirected := p.loadPostForEdit(ctx)
	if redirected {
		return
	}
	p.renderPostForm(ctx, post, "")
}

// PostEdit handles the edit form submission. Only the author may change the
// post; a non-author attempt leaves it untouched and redirects to detail.
func (p *PostController) PostEdit(ctx *gin.Context) {
	post, redirected := p.loadPostForEdit(ctx)
	if redirected {
		return
	}

	text := utils.Sanitize(strings.TrimSpace(ctx.PostForm("text")))
	groupID, groupErr := p.parseGroupField(ctx)
	if text == "" || groupErr != nil {
		draft := &models.Post{ID: post.ID, Text: text, GroupID: groupID, Image: post.Image}
		p.renderPostForm(ctx, draft, formError(text, groupErr))
		return
	}

	viewerID, _ := middleware.UserID(ctx)
	imageURL, imgErr := p.saveImage(ctx, viewerID)
	if imgErr != nil {
		draft := &models.Post{ID: post.ID, Text: text, GroupID: groupID, Image: post.Image}
		p.renderPostForm(ctx, draft, imgErr.Error())
		return
	}

	post.Text = text
	post.GroupID = groupID
	if imageURL != "" {
		post.Image = imageURL
	}
	if err := p.db.Save(post).Error; err != nil {
		p.renderPostForm(ctx, post, "failed to save the post, please retry")
		return
	}
	p.markImageAttached(imageURL)

	ctx.Redirect(http.StatusFound, fmt.Sprintf("/posts/%d", post.ID))
}

// AddComment appends a comment to a post and returns to the detail page.
func (p *PostController) AddComment(ctx *gin.Context) {
	var post models.Post
	if err := p.db.First(&post, "id = ?", ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx)
			return
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return
	}

	viewerID, ok := middleware.UserID(ctx)
	if !ok {
		ctx.Redirect(http.StatusFound, middleware.LoginPath)
		return
	}

	detailURL := fmt.Sprintf("/posts/%d", post.ID)
	text := utils.Sanitize(strings.TrimSpace(ctx.PostForm("text")))
	if text == "" {
		// Invalid comment form: back to the detail page unchanged.
		ctx.Redirect(http.StatusFound, detailURL)
		return
	}

	comment := models.Comment{PostID: post.ID, AuthorID: viewerID, Text: text}
	if err := p.db.Create(&comment).Error; err != nil {
		utils.Sugar.Warnf("failed to create comment on post %d: %v", post.ID, err)
	}
	ctx.Redirect(http.StatusFound, detailURL)
}

// loadPostForEdit loads the post and enforces the author-only rule. A true
// second return value means a response was already written.
func (p *PostController) loadPostForEdit(ctx *gin.Context) (*models.Post, bool) {
	var post models.Post
	if err := p.db.First(&post, "id = ?", ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			renderNotFound(ctx)
			return nil, true
		}
		ctx.HTML(http.StatusInternalServerError, "500.html", htmlData(ctx, gin.H{"title": "Server error"}))
		return nil, true
	}

	viewerID, _ := middleware.UserID(ctx)
	if viewerID != post.AuthorID {
		ctx.Redirect(http.StatusFound, fmt.Sprintf("/posts/%d", post.ID))
		return nil, true
	}
	return &post, false
}

func (p *PostController) renderPostForm(ctx *gin.Context, post *models.Post, formErr string) {
	var groups []models.Group
	if err := p.db.Order("title ASC").Find(&groups).Error; err != nil {
		utils.Sugar.Warnf("failed to load groups for post form: %v", err)
	}

	isEdit := post != nil && post.ID != 0
	title := "New post"
	if isEdit {
		title = "Edit post"
	}

	var selectedGroup uint
	if post != nil && post.GroupID != nil {
		selectedGroup = *post.GroupID
	}

	status := http.StatusOK
	if formErr != "" {
		status = http.StatusBadRequest
	}
	ctx.HTML(status, "create_post.html", htmlData(ctx, gin.H{
		"title":          title,
		"is_edit":        isEdit,
		"post":           post,
		"groups":         groups,
		"selected_group": selectedGroup,
		"form_error":     formErr,
	}))
}

// parseGroupField reads the optional group select field.
func (p *PostController) parseGroupField(ctx *gin.Context) (*uint, error) {
	raw := strings.TrimSpace(ctx.PostForm("group"))
	if raw == "" || raw == "0" {
		return nil, nil
	}
	var group models.Group
	if err := p.db.First(&group, "id = ?", raw).Error; err != nil {
		return nil, errors.New("select a valid group")
	}
	id := group.ID
	return &id, nil
}

// saveImage stores an optional uploaded image under the uploads directory
// and records it as pending until it is attached to a post. Returns the
// public URL, empty when no file was sent.
func (p *PostController) saveImage(ctx *gin.Context, userID uint) (string, error) {
	file, header, err := ctx.Request.FormFile("image")
	if err != nil {
		return "", nil // image is optional
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		return "", errors.New("upload a gif, jpeg or png image")
	}
	if header.Size > maxImageSize {
		return "", errors.New("image exceeds the 10MB limit")
	}

	cfg := config.Get()
	now := time.Now()
	baseDir := filepath.Join(cfg.UploadsDir, now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", errors.New("failed to store the image")
	}

	// Prefix with the uploader id to keep ownership visible on disk.
	name := fmt.Sprintf("%d_%s%s", userID, uuid.New().String(), ext)
	dstPath := filepath.Join(baseDir, name)
	out, err := os.Create(dstPath)
	if err != nil {
		return "", errors.New("failed to store the image")
	}
	defer out.Close()

	lr := &io.LimitedReader{R: file, N: maxImageSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil || written > maxImageSize {
		_ = os.Remove(dstPath)
		return "", errors.New("failed to store the image")
	}

	relURL := "/" + filepath.ToSlash(dstPath)
	absPath, _ := filepath.Abs(dstPath)
	expireAt := now.Add(time.Duration(cfg.UploadsPendingTTLMinutes) * time.Minute)
	if err := p.db.Create(&models.UploadedFile{FilePath: absPath, URL: relURL, ExpireAt: &expireAt}).Error; err != nil {
		utils.Sugar.Warnf("failed to record uploaded image %s: %v", relURL, err)
	}
	return relURL, nil
}

// markImageAttached makes a pending upload permanent once a post references it.
func (p *PostController) markImageAttached(url string) {
	if url == "" {
		return
	}
	if err := p.db.Model(&models.UploadedFile{}).Where("url = ?", url).
		Update("expire_at", nil).Error; err != nil {
		utils.Sugar.Warnf("failed to mark upload %s attached: %v", url, err)
	}
}

func formError(text string, groupErr error) string {
	if text == "" {
		return "the post text cannot be empty"
	}
	if groupErr != nil {
		return groupErr.Error()
	}
	return ""
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
