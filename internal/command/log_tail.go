package command

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joeycumines/elmhost/internal/config"
)

// LogCommand prints the tail of the session log file written by `run`
// when log.file is set, optionally following it across rotations.
type LogCommand struct {
	*BaseCommand
	cfg    *config.Config
	follow bool
	lines  int
	file   string

	pollInterval time.Duration
}

func NewLogCommand(cfg *config.Config) *LogCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &LogCommand{
		BaseCommand:  NewBaseCommand("log", "Show the session log file", "log [tail] [options]"),
		cfg:          cfg,
		pollInterval: 200 * time.Millisecond,
	}
}

func (c *LogCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.follow, "f", false, "Follow the log file")
	fs.BoolVar(&c.follow, "follow", false, "Follow the log file")
	fs.IntVar(&c.lines, "n", 10, "Number of lines to show from the end of the file")
	fs.StringVar(&c.file, "file", "", "Log file to read (overrides log.file)")
}

func (c *LogCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "tail" {
		c.follow = true
		args = args[1:]
	}
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown subcommand: %s\n", args[0])
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}

	path := c.file
	if path == "" {
		st, err := config.Resolve(c.cfg, config.DefaultSchema(), "run")
		if err != nil {
			return err
		}
		path = st.LogFile
	}
	if path == "" {
		_, _ = fmt.Fprintf(stderr, "No log file configured. Use --file or set %s.\n", config.KeyLogFile)
		return fmt.Errorf("no log file configured")
	}

	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		if !c.follow {
			_, _ = fmt.Fprintf(stderr, "Log file does not exist: %s\n", path)
			return fmt.Errorf("log file not found: %s", path)
		}
		_, _ = fmt.Fprintf(stderr, "Waiting for log file: %s\n", path)
		if f, err = c.waitForFile(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	lines := lastLines(f, c.lines)
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(stdout, line)
	}
	if !c.follow {
		return f.Close()
	}

	err = c.followFile(ctx, f, path, pos, stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lastLines returns up to n trailing lines of r, keeping only n in memory.
func lastLines(r io.Reader, n int) []string {
	if n <= 0 {
		return nil
	}
	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	total := min(count, n)
	out := make([]string, total)
	for i := range total {
		out[i] = ring[(count-total+i)%n]
	}
	return out
}

// followFile polls f for appended lines until ctx is done. A file at path
// smaller than the read position is treated as rotated and reopened.
func (c *LogCommand) followFile(ctx context.Context, f *os.File, path string, pos int64, stdout io.Writer) error {
	reader := bufio.NewReader(f)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	defer func() { _ = f.Close() }()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		switch {
		case err != nil:
			_ = f.Close()
			nf, err := c.waitForFile(ctx, path)
			if err != nil {
				return err
			}
			f, reader, pos, partial = nf, bufio.NewReader(nf), 0, ""
		case info.Size() < pos:
			nf, err := os.Open(path)
			if err != nil {
				continue
			}
			_ = f.Close()
			f, reader, pos, partial = nf, bufio.NewReader(nf), 0, ""
		}

		for {
			chunk, err := reader.ReadString('\n')
			pos += int64(len(chunk))
			if err != nil {
				partial += chunk
				break
			}
			_, _ = fmt.Fprint(stdout, partial+chunk)
			partial = ""
		}
	}
}

func (c *LogCommand) waitForFile(ctx context.Context, path string) (*os.File, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		f, err := os.Open(path)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
