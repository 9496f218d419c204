// Package web embeds the console's templates, static assets and SQL
// migrations.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:templates all:static all:migrations
var content embed.FS

func TemplateFS() fs.FS {
	return content
}

// MigrationsFS holds the golang-migrate files under "migrations".
func MigrationsFS() fs.FS {
	return content
}

// StaticHandler serves files under /static/ from the embedded static
// directory only.
func StaticHandler() http.Handler {
	fsys, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(fsys)))
}
