// Package web holds the console's server-rendered templates and browser assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// TemplatePatterns lists the template globs in parse order. Layouts come first
// so pages can override their blocks.
var TemplatePatterns = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
}

//go:embed static/css/*.css static/js/*.js
var static embed.FS

// Static returns the assets rooted at static/, served under /static/.
func Static() (fs.FS, error) {
	return fs.Sub(static, "static")
}
