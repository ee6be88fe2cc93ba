package main

import (
	"time"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/routes"
	"github.com/shakdv/yatube/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{}, &models.Group{}, &models.Post{}, &models.Comment{},
		&models.Follow{}, &models.PageView{}, &models.UploadedFile{},
	)

	// Global feed page cache: short fixed TTL, staleness accepted by design.
	pageCache := utils.NewPageCache(utils.GetRedis(), "cache:page:",
		time.Duration(cfg.PageCacheTTLSeconds)*time.Second)

	r := routes.SetupRouter(db, pageCache)

	// Purge images that were uploaded but never attached to a post.
	utils.StartUploadCleaner(5 * time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
