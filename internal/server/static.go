package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const frontendMissing = "Frontend build missing. Run `npm run build` inside `frontend/` first."

// handleStatic serves the built frontend with an SPA fallback: unknown paths
// get index.html so client-side routing works.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	indexPath := filepath.Join(s.frontendDist, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(frontendMissing))
		return
	}

	// Reject traversal before touching the filesystem.
	reqPath := filepath.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	if reqPath == "." || strings.HasPrefix(reqPath, "..") {
		http.ServeFile(w, r, indexPath)
		return
	}

	full := filepath.Join(s.frontendDist, reqPath)
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return
	}
	http.ServeFile(w, r, indexPath)
}
