package devserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// layered serves from the first root containing the requested path.
type layered struct {
	roots []string
	fs    []http.Handler
}

func newLayered(roots ...string) *layered {
	l := &layered{roots: roots}
	for _, r := range roots {
		l.fs = append(l.fs, http.FileServer(http.Dir(r)))
	}
	return l
}

func (l *layered) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if i := l.lookup(r.URL.Path); i >= 0 {
		l.fs[i].ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// lookup returns the index of the first root holding urlPath, or -1. A
// directory counts only when it has an index.html.
func (l *layered) lookup(urlPath string) int {
	rel := filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+urlPath), "/"))
	for i, root := range l.roots {
		p := filepath.Join(root, rel)
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !st.IsDir() {
			return i
		}
		if idx, err := os.Stat(filepath.Join(p, "index.html")); err == nil && !idx.IsDir() {
			return i
		}
	}
	return -1
}
