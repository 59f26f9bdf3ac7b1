package command

import (
	"embed"
	"io/fs"

	"github.com/joeycumines/elmhost/internal/scripting"
)

//go:embed demo/compiledElm.js
var demoFS embed.FS

// demoLoader serves the built-in counter program as compiledElm.js.
func demoLoader() scripting.ResourceLoader {
	sub, err := fs.Sub(demoFS, "demo")
	if err != nil {
		panic(err)
	}
	return scripting.FSLoader{FS: sub}
}
