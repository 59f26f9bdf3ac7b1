package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joeycumines/elmhost/internal/config"
	"github.com/joeycumines/elmhost/internal/scripting"
)

// newLogger builds the diagnostic sink for a session. Records always go to
// the in-memory ring; they are also written as JSON to the log file, when
// one is configured, or else as text to console, when it is non-nil.
//
// The returned closer releases the log file and is never nil.
func newLogger(st config.Settings, console io.Writer) (*scripting.Logger, io.Closer, error) {
	var (
		next   slog.Handler
		closer io.Closer = nopCloser{}
	)
	opts := &slog.HandlerOptions{Level: st.LogLevel}

	switch {
	case st.LogFile != "":
		w, err := scripting.NewRotatingFileWriter(st.LogFile, st.LogMaxSizeMB, st.LogMaxFiles)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", st.LogFile, err)
		}
		next = slog.NewJSONHandler(w, opts)
		closer = w
	case console != nil:
		next = slog.NewTextHandler(console, opts)
	}

	size := st.LogBufferSize
	if size <= 0 {
		size = scripting.DefaultMaxEntries
	}
	return scripting.NewLogger(size, next), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
