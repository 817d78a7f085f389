// Package web holds the HTML templates served by the handlers.
package web

import (
	"embed"
	"html/template"
	"time"

	"github.com/serviciomed/serviciomed/internal/intake"
)

//go:embed templates/*.html
var files embed.FS

var funcs = template.FuncMap{
	"fecha": func(t time.Time) string { return t.Local().Format(intake.DateLayout) },
}

// Templates parses every page. Pages are looked up by file name, e.g.
// "login.html".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.html")
}
