package httpapi

import (
	"net/http"
	"path"
	"strings"
)

var publicPages = map[string]bool{
	"/login":   true,
	"/patient": true,
	"/doctor":  true,
}

var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true,
}

// handlePage guards every path that is not an API route. Anonymous visitors
// may only see the login pages, signed-in users are sent away from them.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if isAsset(r.URL.Path) {
		h.pages.serve(w, r)
		return
	}

	_, err := h.sessions.FromRequest(r)
	authenticated := err == nil
	public := publicPages[strings.TrimSuffix(r.URL.Path, "/")]

	switch {
	case !authenticated && !public:
		http.Redirect(w, r, "/login", http.StatusFound)
	case authenticated && public:
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		h.pages.serve(w, r)
	}
}

func isAsset(p string) bool {
	if strings.HasPrefix(p, "/_next/") || strings.HasPrefix(p, "/static/") {
		return true
	}
	if path.Base(p) == "favicon.ico" {
		return true
	}
	return assetExtensions[strings.ToLower(path.Ext(p))]
}

// pageServer resolves /doctor to doctor, doctor.html or doctor/index.html
// under the static directory.
type pageServer struct {
	root http.FileSystem
}

func newPageServer(dir string) *pageServer {
	if dir == "" {
		return &pageServer{}
	}
	return &pageServer{root: http.Dir(dir)}
}

func (p *pageServer) serve(w http.ResponseWriter, r *http.Request) {
	if p.root == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.NotFound(w, r)
		return
	}
	name := path.Clean("/" + r.URL.Path)
	for _, candidate := range []string{name, name + ".html", path.Join(name, "index.html")} {
		f, err := p.root.Open(candidate)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			_ = f.Close()
			continue
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		_ = f.Close()
		return
	}
	http.NotFound(w, r)
}
