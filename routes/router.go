package routes

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/controllers"
	"github.com/shakdv/yatube/feed"
	"github.com/shakdv/yatube/middleware"
	"github.com/shakdv/yatube/utils"
)

// SetupRouter wires routes, middlewares, and controllers. The page cache is
// injected so administrative and test hooks can clear it.
func SetupRouter(db *gorm.DB, pageCache *utils.PageCache) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	r.Use(middleware.CurrentUser())
	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.SetFuncMap(template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	})
	r.LoadHTMLGlob(cfg.TemplatesGlob)
	r.Static("/static", "./static")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	feeds := feed.NewBuilder(db, cfg.PostsPerPage)
	follows := feed.NewFollowManager(db)

	postController := controllers.NewPostController(db, feeds)
	followController := controllers.NewFollowController(db, feeds, follows)
	authController := controllers.NewAuthController(db)
	statsController := controllers.NewStatsController(db)
	apiController := controllers.NewAPIController(db, feeds, pageCache)

	// Only the global feed is cached; every other feed renders fresh.
	r.GET("/", middleware.CachePage(pageCache, "text/html; charset=utf-8"), postController.Index)
	r.GET("/group/:slug", postController.GroupPosts)
	r.GET("/profile/:username", postController.Profile)
	r.GET("/posts/:id", postController.PostDetail)

	r.GET("/about/author", func(ctx *gin.Context) {
		ctx.HTML(http.StatusOK, "about_author.html", gin.H{"title": "About the author"})
	})
	r.GET("/about/tech", func(ctx *gin.Context) {
		ctx.HTML(http.StatusOK, "about_tech.html", gin.H{"title": "Technologies"})
	})

	authorOnly := r.Group("", middleware.AuthRequired())
	authorOnly.GET("/create", postController.PostCreateForm)
	authorOnly.POST("/create", postController.PostCreate)
	authorOnly.GET("/posts/:id/edit", postController.PostEditForm)
	authorOnly.POST("/posts/:id/edit", postController.PostEdit)
	authorOnly.POST("/posts/:id/comment", postController.AddComment)
	authorOnly.GET("/follow", followController.FollowIndex)
	authorOnly.POST("/profile/:username/follow", followController.ProfileFollow)
	authorOnly.POST("/profile/:username/unfollow", followController.ProfileUnfollow)

	authGroup := r.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.GET("/signup", authController.SignupForm)
	authGroup.POST("/signup", authController.Signup)
	authGroup.GET("/login", authController.LoginForm)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/logout", authController.Logout)
	authGroup.GET("/oauth/github/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/github/callback", authController.OAuthCallback)

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	api := r.Group("/api/v1")
	api.Use(cors.New(corsCfg))
	api.GET("/posts", apiController.ListPosts)
	api.GET("/posts/:id", apiController.GetPost)
	api.GET("/groups/:slug/posts", apiController.ListGroupPosts)
	api.GET("/stats", statsController.GetStats)
	api.GET("/posts/:id/stats", statsController.GetPostStats)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		ctx.HTML(http.StatusNotFound, "404.html", gin.H{"title": "Page not found"})
	})

	return r
}
