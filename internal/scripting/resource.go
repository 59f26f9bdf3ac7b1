package scripting

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrResourceNotFound is reported through the sink when the program source
// resource is absent.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceLoader supplies named program source. A missing resource is
// reported as ok == false, not as an error; err is reserved for resources
// that exist but could not be read.
type ResourceLoader interface {
	LoadResource(name string) (data []byte, ok bool, err error)
}

// LoaderFunc adapts a function to ResourceLoader.
type LoaderFunc func(name string) ([]byte, bool, error)

func (f LoaderFunc) LoadResource(name string) ([]byte, bool, error) { return f(name) }

// FSLoader loads resources from a file system, e.g. os.DirFS or an embed.FS.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) LoadResource(name string) ([]byte, bool, error) {
	if l.FS == nil {
		return nil, false, nil
	}
	data, err := fs.ReadFile(l.FS, name)
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
}
