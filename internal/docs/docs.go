package docs

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
)

//go:embed web/*
var content embed.FS

// SpecPath is the path of the OpenAPI document relative to the handler root.
const SpecPath = "/openapi.yaml"

// Handler returns an http.Handler serving the documentation assets.
// Mount it with the mount prefix stripped.
// Panics if the embedded assets cannot be loaded (build error).
func Handler() http.Handler {
	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("docs: failed to load embedded assets: %v", err))
	}
	fileSystem := http.FS(webFS)
	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		upath := path.Clean("/" + r.URL.Path)
		if upath != "/" {
			f, err := fileSystem.Open(upath[1:])
			if err == nil {
				f.Close()
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// Unknown paths get the UI page.
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		fileServer.ServeHTTP(w, r2)
	})
}
