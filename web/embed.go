// Package web embeds the browser chat client and serves it over HTTP.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:static
var staticFS embed.FS

// Handler serves the embedded client. Paths that name no file get 404.
func Handler() http.Handler {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: embedded static dir missing: " + err.Error())
	}
	return http.FileServer(http.FS(static))
}
