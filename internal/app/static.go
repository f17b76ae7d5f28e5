package app

import (
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
)

// assetTypes are the content types of the embedded assets. Minimal container
// images ship without /etc/mime.types.
var assetTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
}

func registerAssetTypes(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for ext, typ := range assetTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			logger.Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}

// staticHandler serves assets under /static/ with a one hour cache.
func staticHandler(assets fs.FS) http.Handler {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(assets)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
