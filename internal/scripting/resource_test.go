package scripting

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSLoader(t *testing.T) {
	loader := FSLoader{FS: fstest.MapFS{
		"compiledElm.js": {Data: []byte("var x = 1;")},
		"dir":            {Mode: fs.ModeDir},
	}}

	data, ok, err := loader.LoadResource("compiledElm.js")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "var x = 1;", string(data))

	data, ok, err = loader.LoadResource("missing.js")
	require.NoError(t, err, "absence is not an error")
	assert.False(t, ok)
	assert.Nil(t, data)

	_, ok, err = loader.LoadResource("dir")
	assert.Error(t, err)
	assert.False(t, ok)

	_, ok, err = FSLoader{}.LoadResource("compiledElm.js")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoaderFunc(t *testing.T) {
	sentinel := errors.New("unreadable")
	loader := LoaderFunc(func(name string) ([]byte, bool, error) {
		return nil, false, sentinel
	})
	_, _, err := loader.LoadResource("x")
	assert.ErrorIs(t, err, sentinel)
}
