package api

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed web
var webFiles embed.FS

// mountUI serves the history page at / and its assets under /static. The
// page holds no data; it reads everything through the authorised API, so it
// is served without a token.
func mountUI(router *gin.Engine) error {
	page, err := webFiles.ReadFile("web/index.html")
	if err != nil {
		return err
	}
	static, err := fs.Sub(webFiles, "web/static")
	if err != nil {
		return err
	}

	router.GET("/", func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})
	router.StaticFS("/static", http.FS(static))
	return nil
}
