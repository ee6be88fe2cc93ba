package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shakdv/yatube/models"
	"github.com/shakdv/yatube/utils"
)

// StatsController provides site statistics such as counts and daily page views.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics for the site.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount int64
	var postCount int64
	var commentCount int64
	var followCount int64
	var dailyViews int64

	// Fall back to 0 instead of failing the whole endpoint.
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}
	if err := s.db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := s.db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}
	if err := s.db.Model(&models.Follow{}).Count(&followCount).Error; err != nil {
		followCount = 0
	}

	// Daily views: sum of today's page views across all paths. Use string
	// date equality to avoid timezone/type mismatches with the DATE column.
	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&dailyViews).Error; err != nil {
		dailyViews = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":    userCount,
		"post_count":    postCount,
		"comment_count": commentCount,
		"follow_count":  followCount,
		"daily_views":   dailyViews,
	})
}

// GetPostStats returns page views and comment count for a given post id.
func (s *StatsController) GetPostStats(ctx *gin.Context) {
	id := ctx.Param("id")

	var pv int64
	if err := s.db.Model(&models.PageView{}).
		Where("path = ?", "/posts/"+id).
		Select("COALESCE(SUM(count),0)").
		Scan(&pv).Error; err != nil {
		pv = 0
	}

	var commentsCount int64
	if err := s.db.Model(&models.Comment{}).Where("post_id = ?", id).Count(&commentsCount).Error; err != nil {
		commentsCount = 0
	}

	utils.Success(ctx, gin.H{
		"pv":             pv,
		"comments_count": commentsCount,
	})
}
