package goroutineid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	assert.Equal(t, int64(123), parse([]byte("goroutine 123 [running]:\n")))
	assert.Equal(t, int64(7), parse([]byte("goroutine 7")))
	assert.Zero(t, parse([]byte("something else\n")))
	assert.Zero(t, parse([]byte("goroutine x [running]")))
	assert.Zero(t, parse(nil))
}

func TestGet(t *testing.T) {
	id := Get()
	require.Greater(t, id, int64(0))
	assert.Equal(t, id, Get())

	other := make(chan int64)
	go func() { other <- Get() }()
	assert.NotEqual(t, id, <-other)
}

func TestOwner(t *testing.T) {
	var o Owner
	assert.False(t, o.Held())

	o.Claim()
	assert.True(t, o.Held())

	held := make(chan bool)
	go func() { held <- o.Held() }()
	assert.False(t, <-held)

	o.Release()
	assert.False(t, o.Held())
}
