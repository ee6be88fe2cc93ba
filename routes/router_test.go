package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/middleware"
	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/utils"
)

func setupTestServer(t *testing.T) (*gin.Engine, *gorm.DB, *utils.PageCache) {
	t.Helper()
	tmp := t.TempDir()
	config.SetForTesting(config.AppConfig{
		AppPort:                  "8080",
		JWTSecret:                "test-secret",
		PostsPerPage:             10,
		PageCacheTTLSeconds:      20,
		RateLimitPerMinute:       1000,
		AllowedOrigins:           []string{"*"},
		GinMode:                  "test",
		GinPath:                  filepath.Join(tmp, "gin.log"),
		TemplatesGlob:            "../templates/*.html",
		LogLevel:                 "info",
		UploadsDir:               filepath.Join(tmp, "uploads"),
		UploadsPendingTTLMinutes: 60,
	})
	utils.SetRedisForTesting(nil)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Group{}, &models.Post{}, &models.Comment{},
		&models.Follow{}, &models.PageView{}, &models.UploadedFile{},
	))

	pageCache := utils.NewPageCache(nil, "cache:page:", 20*time.Second)
	return SetupRouter(db, pageCache), db, pageCache
}

func newTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("secret-pass-123")
	require.NoError(t, err)
	u := &models.User{Username: username, PasswordHash: hash}
	require.NoError(t, db.Create(u).Error)
	return u
}

func newTestPost(t *testing.T, db *gorm.DB, author *models.User, text string) *models.Post {
	t.Helper()
	p := &models.Post{AuthorID: author.ID, Text: text}
	require.NoError(t, db.Create(p).Error)
	return p
}

func sessionCookie(t *testing.T, u *models.User) *http.Cookie {
	t.Helper()
	token, err := utils.GenerateToken(u.ID, u.Username, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.AuthCookieName, Value: token, Path: "/"}
}

func doGET(r *gin.Engine, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doForm(r *gin.Engine, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGlobalFeedCacheLifecycle(t *testing.T) {
	r, db, pageCache := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	newTestPost(t, db, author, "the very first post")

	w1 := doGET(r, "/", nil)
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Contains(t, w1.Body.String(), "the very first post")

	// A new post does not appear while the cached page is fresh; the body
	// is byte-identical to the first response.
	newTestPost(t, db, author, "a brand new post")
	w2 := doGET(r, "/", nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, w1.Body.Bytes(), w2.Body.Bytes())
	assert.NotContains(t, w2.Body.String(), "a brand new post")

	// After clearing the cache the next render picks up the new post.
	pageCache.Clear()
	w3 := doGET(r, "/", nil)
	require.Equal(t, http.StatusOK, w3.Code)
	assert.Contains(t, w3.Body.String(), "a brand new post")
}

func TestGlobalFeedCacheIsPerViewer(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	viewer := newTestUser(t, db, "PetrPetrov")
	newTestPost(t, db, author, "a post")
	cookie := sessionCookie(t, viewer)

	// Anonymous render populates the cache first.
	anon1 := doGET(r, "/", nil)
	require.Equal(t, http.StatusOK, anon1.Code)
	assert.Contains(t, anon1.Body.String(), "Sign in")
	assert.NotContains(t, anon1.Body.String(), "Sign out")

	// A signed-in viewer within the TTL must not get the anonymous page.
	auth1 := doGET(r, "/", cookie)
	require.Equal(t, http.StatusOK, auth1.Code)
	assert.Contains(t, auth1.Body.String(), "Sign out")
	assert.Contains(t, auth1.Body.String(), "PetrPetrov")

	// And the anonymous variant must never carry the viewer's identity.
	anon2 := doGET(r, "/", nil)
	require.Equal(t, http.StatusOK, anon2.Code)
	assert.NotContains(t, anon2.Body.String(), "PetrPetrov")
	assert.Equal(t, anon1.Body.Bytes(), anon2.Body.Bytes())

	// The viewer's own variant is cached like any other.
	auth2 := doGET(r, "/", cookie)
	require.Equal(t, http.StatusOK, auth2.Code)
	assert.Equal(t, auth1.Body.Bytes(), auth2.Body.Bytes())
}

func TestOnlyGlobalFeedIsCached(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	newTestPost(t, db, author, "profile post one")

	w1 := doGET(r, "/profile/IvanIvanov", nil)
	require.Equal(t, http.StatusOK, w1.Code)

	newTestPost(t, db, author, "profile post two")
	w2 := doGET(r, "/profile/IvanIvanov", nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "profile post two")
}

func TestAnonymousIsRedirectedToLoginWithNext(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	post := newTestPost(t, db, author, "text")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/create"},
		{http.MethodGet, "/follow"},
		{http.MethodGet, fmt.Sprintf("/posts/%d/edit", post.ID)},
		{http.MethodPost, fmt.Sprintf("/posts/%d/comment", post.ID)},
	}
	for _, tc := range cases {
		var w *httptest.ResponseRecorder
		if tc.method == http.MethodGet {
			w = doGET(r, tc.path, nil)
		} else {
			w = doForm(r, tc.path, url.Values{"text": {"hi"}}, nil)
		}
		require.Equal(t, http.StatusFound, w.Code, tc.path)
		assert.Equal(t, middleware.LoginPath+"?next="+url.QueryEscape(tc.path), w.Header().Get("Location"), tc.path)
	}
}

func TestPostCreateAndCommentFlow(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	cookie := sessionCookie(t, author)

	w := doForm(r, "/create", url.Values{"text": {"my new post"}}, cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/profile/IvanIvanov", w.Header().Get("Location"))

	var post models.Post
	require.NoError(t, db.Where("author_id = ?", author.ID).First(&post).Error)
	assert.Equal(t, "my new post", post.Text)

	w = doForm(r, fmt.Sprintf("/posts/%d/comment", post.ID), url.Values{"text": {"nice one"}}, cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/posts/%d", post.ID), w.Header().Get("Location"))

	var count int64
	require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNonAuthorEditLeavesPostUnchanged(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	intruder := newTestUser(t, db, "PetrPetrov")
	post := newTestPost(t, db, author, "original text")

	w := doForm(r, fmt.Sprintf("/posts/%d/edit", post.ID),
		url.Values{"text": {"hijacked"}}, sessionCookie(t, intruder))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/posts/%d", post.ID), w.Header().Get("Location"))

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Equal(t, "original text", reloaded.Text)
}

func TestAuthorEditUpdatesPost(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	post := newTestPost(t, db, author, "original text")

	w := doForm(r, fmt.Sprintf("/posts/%d/edit", post.ID),
		url.Values{"text": {"edited text"}}, sessionCookie(t, author))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/posts/%d", post.ID), w.Header().Get("Location"))

	var reloaded models.Post
	require.NoError(t, db.First(&reloaded, post.ID).Error)
	assert.Equal(t, "edited text", reloaded.Text)
	assert.Equal(t, author.ID, reloaded.AuthorID)
}

func TestFollowAndUnfollowEndpoints(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	viewer := newTestUser(t, db, "PetrPetrov")
	cookie := sessionCookie(t, viewer)

	edgeCount := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
		return n
	}

	w := doForm(r, "/profile/IvanIvanov/follow", nil, cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/profile/IvanIvanov", w.Header().Get("Location"))
	assert.Equal(t, int64(1), edgeCount())

	// Following twice keeps a single edge.
	doForm(r, "/profile/IvanIvanov/follow", nil, cookie)
	assert.Equal(t, int64(1), edgeCount())

	// Self-follow is silently ignored.
	doForm(r, "/profile/IvanIvanov/follow", nil, sessionCookie(t, author))
	assert.Equal(t, int64(1), edgeCount())

	w = doForm(r, "/profile/IvanIvanov/unfollow", nil, cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, int64(0), edgeCount())

	// Unfollowing without an edge is a 404.
	w = doForm(r, "/profile/IvanIvanov/unfollow", nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowFeedPage(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	viewer := newTestUser(t, db, "PetrPetrov")
	newTestPost(t, db, author, "only for followers")
	cookie := sessionCookie(t, viewer)

	w := doGET(r, "/follow", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "only for followers")

	doForm(r, "/profile/IvanIvanov/follow", nil, cookie)
	w = doGET(r, "/follow", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "only for followers")
}

func TestUnknownPagesAreNotFound(t *testing.T) {
	r, db, _ := setupTestServer(t)
	newTestUser(t, db, "IvanIvanov")

	assert.Equal(t, http.StatusNotFound, doGET(r, "/group/no-such-group", nil).Code)
	assert.Equal(t, http.StatusNotFound, doGET(r, "/profile/nobody", nil).Code)
	assert.Equal(t, http.StatusNotFound, doGET(r, "/posts/9999", nil).Code)
	assert.Equal(t, http.StatusNotFound, doGET(r, "/unexisting-page", nil).Code)

	w := doGET(r, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestSignupAndLoginFlow(t *testing.T) {
	r, db, _ := setupTestServer(t)

	w := doForm(r, "/auth/signup", url.Values{
		"username": {"OlgaOrlova"},
		"password": {"secret-pass-123"},
		"confirm":  {"secret-pass-123"},
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)

	var u models.User
	require.NoError(t, db.Where("username = ?", "OlgaOrlova").First(&u).Error)

	w = doForm(r, "/auth/login", url.Values{
		"username": {"OlgaOrlova"},
		"password": {"secret-pass-123"},
		"next":     {"/create"},
	}, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/create", w.Header().Get("Location"))

	var hasCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AuthCookieName && c.Value != "" {
			hasCookie = true
		}
	}
	assert.True(t, hasCookie)
}

func TestAPIListPosts(t *testing.T) {
	r, db, _ := setupTestServer(t)
	author := newTestUser(t, db, "IvanIvanov")
	newTestPost(t, db, author, "api visible post")

	w := doGET(r, "/api/v1/posts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 0, envelope.Code)
	assert.Contains(t, string(envelope.Data), "api visible post")
}
