// Package goroutineid identifies the calling goroutine, which the script
// runtime uses to detect re-entry from its own event loop goroutine.
package goroutineid

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

var goroutinePrefix = []byte("goroutine ")

// Get returns the current goroutine id, or 0 if it could not be determined.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads the id from the "goroutine N [status]:" header.
func parse(stack []byte) int64 {
	rest, ok := bytes.CutPrefix(stack, goroutinePrefix)
	if !ok {
		return 0
	}
	end := bytes.IndexByte(rest, ' ')
	if end < 0 {
		end = len(rest)
	}
	id, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// Owner records a single goroutine, typically an event loop, so that other
// code can ask whether it is running on it.
type Owner struct {
	id atomic.Int64
}

// Claim records the calling goroutine as the owner.
func (o *Owner) Claim() { o.id.Store(Get()) }

// Release forgets the owner.
func (o *Owner) Release() { o.id.Store(0) }

// Held reports whether the calling goroutine is the recorded owner.
func (o *Owner) Held() bool {
	id := o.id.Load()
	return id > 0 && id == Get()
}
