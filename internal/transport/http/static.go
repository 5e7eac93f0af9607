package httptransport

import (
	"net/http"
	"path"
)

// staticHandler serves files from dir and falls back to index.html so the
// front end can route client-side. Paths are cleaned against the root, so
// ".." segments can never leave dir.
func staticHandler(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		if serveFile(w, r, root, path.Clean("/"+r.URL.Path)) {
			return
		}
		if !serveFile(w, r, root, "/index.html") {
			http.NotFound(w, r)
		}
	}
}

// serveFile writes name from root and reports whether it was a regular file.
func serveFile(w http.ResponseWriter, r *http.Request, root http.FileSystem, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		return false
	}
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
	return true
}
