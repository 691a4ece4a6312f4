// Package resources serves the stylesheet and other static files of the
// certificate desk.
package resources

import (
	"net/http"
	"strings"
)

// URLPrefix is the route under which static files are mounted.
const URLPrefix = "/static/"

// StaticPath returns the URL path for a static asset.
func StaticPath(name string) string {
	return URLPrefix + strings.TrimPrefix(name, "/")
}

// serve strips the mount prefix and applies cacheControl to every response.
func serve(fsys http.FileSystem, cacheControl string) http.Handler {
	files := http.StripPrefix(URLPrefix, http.FileServer(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", cacheControl)
		files.ServeHTTP(w, r)
	})
}
