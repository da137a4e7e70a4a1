package server

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
)

//go:embed static/*
var staticFiles embed.FS

var staticFS = mustSub(staticFiles, "static")

// staticTypes lists the asset types the portal serves. Anything else is not found.
var staticTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
	".svg": "image/svg+xml",
	".png": "image/png",
	".ico": "image/x-icon",
}

var errUnsupportedAsset = errors.New("unsupported asset type")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return sub
}

func StaticFilesFS() fs.FS {
	return staticFS
}

// StreamFile writes an embedded asset with a short public max-age.
func StreamFile(w http.ResponseWriter, _ *http.Request, fileName string) error {
	ctype, ok := staticTypes[path.Ext(fileName)]
	if !ok {
		return fmt.Errorf("%s: %w", fileName, errUnsupportedAsset)
	}
	data, err := fs.ReadFile(staticFS, fileName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}
