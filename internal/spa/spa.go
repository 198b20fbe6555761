// Package spa serves the built single-page application.
package spa

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Handler serves files from a filesystem and falls back to index.html for
// client-side routes.
type Handler struct {
	files fs.FS
	fs    http.Handler
}

// New serves the directory dir.
func New(dir string) (*Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(dir + " is not a directory")
	}
	return NewFS(os.DirFS(dir)), nil
}

// NewFS serves files from fsys.
func NewFS(fsys fs.FS) *Handler {
	return &Handler{files: fsys, fs: http.FileServer(http.FS(fsys))}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		h.index(w, r)
		return
	}
	if _, err := fs.Stat(h.files, name); err == nil {
		h.fs.ServeHTTP(w, r)
		return
	}
	// Missing assets are real 404s; extensionless paths belong to the router.
	if path.Ext(name) != "" {
		http.NotFound(w, r)
		return
	}
	h.index(w, r)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.files, "index.html")
	if err != nil {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}
