// Package web serves the static page of the engine monitor.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DevEnv switches the asset source. "true" or "1" reads the page from the
// source tree and a directory path reads it from that directory.
const DevEnv = "GRENGINE_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// GetAssets returns the page assets.
func GetAssets() http.FileSystem {
	if dir, ok := devDir(); ok {
		fmt.Fprintf(os.Stderr, "serving monitor assets from %s\n", dir)
		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

func devDir() (string, bool) {
	v, ok := os.LookupEnv(DevEnv)
	if !ok {
		return "", false
	}

	switch strings.ToLower(v) {
	case "", "0", "false":
		return "", false
	case "1", "true":
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			panic("cannot locate the monitor assets")
		}

		return filepath.Join(filepath.Dir(file), "dist"), true
	}

	if st, err := os.Stat(v); err == nil && st.IsDir() {
		return v, true
	}

	return "", false
}
