package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shakdv/yatube/middleware"
)

// pageParam reads the ?page= query parameter, defaulting to 1. Non-numeric
// values fall back to 1; out-of-range numbers are handled by the feed
// builder itself.
func pageParam(ctx *gin.Context) int {
	page := 1
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page = n
		}
	}
	return page
}

// htmlData merges the viewer identity into template data so every page can
// render the auth-aware header.
func htmlData(ctx *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	viewerID, authenticated := middleware.UserID(ctx)
	viewerName, _ := middleware.Username(ctx)
	data["authenticated"] = authenticated
	data["viewer_id"] = viewerID
	data["viewer_username"] = viewerName
	return data
}

// renderNotFound renders the HTML 404 page.
func renderNotFound(ctx *gin.Context) {
	ctx.HTML(http.StatusNotFound, "404.html", htmlData(ctx, gin.H{
		"title": "Page not found",
	}))
}
