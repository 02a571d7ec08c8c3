// Package web embeds the browser client served at / and /static.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var assets embed.FS

// Static returns the static asset tree rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		// the directory is embedded at build time
		panic(err)
	}
	return sub
}
