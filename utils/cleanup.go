package utils

import (
	"os"
	"time"

	"github.com/shakdv/yatube/config"
	"github.com/shakdv/yatube/models"
)

// StartUploadCleaner launches a background goroutine that periodically
// deletes uploaded images that were never attached to a post (ExpireAt set
// and in the past). It is best-effort and logs failures.
func StartUploadCleaner(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			db := config.DB()
			if db == nil {
				continue
			}
			var items []models.UploadedFile
			if err := db.Where("expire_at IS NOT NULL AND expire_at <= ?", time.Now()).
				Limit(100).Find(&items).Error; err != nil {
				Sugar.Warnf("upload cleaner query failed: %v", err)
				continue
			}
			for _, it := range items {
				if it.FilePath != "" {
					_ = os.Remove(it.FilePath)
				}
				// Remove row regardless of file deletion outcome
				if err := db.Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
					Sugar.Warnf("upload cleaner delete row failed: %v", err)
				}
			}
		}
	}()
}
