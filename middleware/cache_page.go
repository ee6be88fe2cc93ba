package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shakdv/yatube/utils"
)

// bodyCaptureWriter tees the rendered response into a buffer so a full page
// can be stored after the handler ran.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}

// CachePage serves GET responses from the page cache, keyed by path plus
// query string plus the viewer, and stores fresh 200 renders for the cache
// TTL. The rendered page embeds the viewer's navigation (sign-in links vs
// their username), so each viewer gets their own cached variant; anonymous
// requests share one. Staleness up to the TTL is accepted; nothing
// invalidates entries on writes.
func CachePage(cache *utils.PageCache, contentType string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		viewerID, _ := UserID(ctx)
		key := fmt.Sprintf("u%d|%s", viewerID, ctx.Request.URL.RequestURI())
		if body, ok := cache.Get(key); ok {
			ctx.Data(http.StatusOK, contentType, body)
			ctx.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = writer
		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK && len(writer.body) > 0 {
			cache.Put(key, writer.body)
		}
	}
}
