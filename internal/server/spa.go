package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// handleSPA serves the built frontend from dir. Unknown paths fall back to
// index.html so client-side routes such as /challenge/manage/{id} load the
// app; unknown /api/ paths still get a JSON 404.
func handleSPA(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			handleNotFound(w, r)
			return
		}

		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}
