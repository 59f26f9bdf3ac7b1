package command

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joeycumines/elmhost/internal/bridge"
	"github.com/joeycumines/elmhost/internal/config"
	"github.com/joeycumines/elmhost/internal/scripting"
	"github.com/joeycumines/elmhost/internal/tui"
	"github.com/joeycumines/elmhost/internal/value"
	"golang.org/x/term"
)

// RunCommand runs a program in a session, presented either by the terminal
// UI or headlessly, as one line per render call on stdout.
type RunCommand struct {
	*BaseCommand
	cfg *config.Config

	headless      bool
	forceTUI      bool
	demo          bool
	dir           string
	resource      string
	namespace     string
	strictInitial bool
	callTimeout   time.Duration
	logFile       string
	logLevel      string
	events        string
	duration      time.Duration

	stdin      io.Reader
	isTerminal func() bool
}

func NewRunCommand(cfg *config.Config) *RunCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &RunCommand{
		BaseCommand: NewBaseCommand("run", "Run a compiled program", "run [options] [program.js]"),
		cfg:         cfg,
		stdin:       os.Stdin,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
}

func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.headless, "headless", false, "Write render calls to stdout instead of starting the terminal UI")
	fs.BoolVar(&c.forceTUI, "tui", false, "Start the terminal UI even when not attached to a terminal")
	fs.BoolVar(&c.demo, "demo", false, "Run the built-in counter program")
	fs.StringVar(&c.dir, "dir", "", "Directory the program resource is loaded from")
	fs.StringVar(&c.resource, "resource", "", "Program resource name")
	fs.StringVar(&c.namespace, "namespace", "", "Dotted path of the program namespace")
	fs.BoolVar(&c.strictInitial, "strict-initial", false, "Drop initialRender calls after the first")
	fs.DurationVar(&c.callTimeout, "call-timeout", 0, "Interrupt program calls running longer than this")
	fs.StringVar(&c.logFile, "log-file", "", "Append JSON logs to this file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&c.events, "events", "", "Headless: read JSON events, one per line, from this file (- for stdin)")
	fs.DurationVar(&c.duration, "duration", 0, "Headless: keep running this long after the last event")
}

func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return fmt.Errorf("unexpected arguments")
	}
	if c.headless && c.forceTUI {
		return fmt.Errorf("--headless and --tui are mutually exclusive")
	}

	st, err := config.Resolve(c.cfg, config.DefaultSchema(), c.Name())
	if err != nil {
		return err
	}
	if err := c.applyFlags(&st); err != nil {
		return err
	}

	loader, host, source, err := c.program(&st, args, stderr)
	if err != nil {
		return err
	}

	headless := c.isHeadless(st)
	var console io.Writer
	if headless {
		console = stderr
	}
	logger, logCloser, err := newLogger(st, console)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	opts := bridge.DefaultOptions()
	opts.Logger = logger
	opts.Host = host
	opts.StrictInitialRender = st.StrictInitialRender
	if st.SyncTimeout > 0 {
		opts.SyncTimeout = st.SyncTimeout
	}

	if headless {
		return c.runHeadless(ctx, loader, opts, stdout)
	}
	return c.runTUI(ctx, loader, opts, source, stdout)
}

func (c *RunCommand) applyFlags(st *config.Settings) error {
	if c.dir != "" {
		st.ProgramDir = c.dir
	}
	if c.resource != "" {
		st.ProgramResource = c.resource
	}
	if c.namespace != "" {
		st.ProgramNamespace = strings.Split(c.namespace, ".")
	}
	if c.strictInitial {
		st.StrictInitialRender = true
	}
	if c.callTimeout > 0 {
		st.CallTimeout = c.callTimeout
	}
	if c.logFile != "" {
		st.LogFile = c.logFile
	}
	if c.logLevel != "" {
		if err := st.LogLevel.UnmarshalText([]byte(c.logLevel)); err != nil {
			return fmt.Errorf("invalid log level: %s", c.logLevel)
		}
	}
	return nil
}

// program picks the loader and entry points: an explicit file argument,
// else the configured resource, else the built-in demo when the configured
// resource does not exist.
func (c *RunCommand) program(st *config.Settings, args []string, stderr io.Writer) (scripting.ResourceLoader, scripting.HostConfig, string, error) {
	host := scripting.HostConfig{
		Resource:    st.ProgramResource,
		Namespace:   st.ProgramNamespace,
		StartEntry:  st.ProgramStart,
		EventEntry:  st.ProgramEventHandler,
		CallTimeout: st.CallTimeout,
	}
	demo := func() (scripting.ResourceLoader, scripting.HostConfig, string, error) {
		h := scripting.DefaultHostConfig()
		h.CallTimeout = st.CallTimeout
		return demoLoader(), h, "demo", nil
	}

	if c.demo {
		return demo()
	}
	if len(args) == 1 {
		st.ProgramDir, host.Resource = filepath.Dir(args[0]), filepath.Base(args[0])
	}
	path := filepath.Join(st.ProgramDir, host.Resource)
	if _, err := os.Stat(path); err != nil {
		if len(args) == 1 || !errors.Is(err, fs.ErrNotExist) {
			return nil, host, "", fmt.Errorf("program %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(stderr, "No program at %s, running the built-in demo\n", path)
		return demo()
	}
	return scripting.FSLoader{FS: os.DirFS(st.ProgramDir)}, host, path, nil
}

func (c *RunCommand) isHeadless(st config.Settings) bool {
	switch {
	case c.headless:
		return true
	case c.forceTUI:
		return false
	}
	switch st.UIMode {
	case config.UIModeHeadless:
		return true
	case config.UIModeTUI:
		return false
	default:
		return !c.isTerminal()
	}
}

func (c *RunCommand) runHeadless(ctx context.Context, loader scripting.ResourceLoader, opts bridge.Options, stdout io.Writer) error {
	sess, err := bridge.NewSession(ctx, bridge.NewLogRenderer(stdout), opts)
	if err != nil {
		return err
	}
	defer sess.Close()
	log := sess.Logger()

	if err := sess.Start(loader); err != nil {
		return err
	}

	if c.events != "" {
		if err := c.replay(ctx, sess); err != nil {
			return err
		}
	}

	switch {
	case c.duration > 0:
		select {
		case <-ctx.Done():
		case <-time.After(c.duration):
		}
	case c.events == "":
		<-ctx.Done()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), opts.DrainTimeout)
	defer cancel()
	if err := sess.Barrier(waitCtx); err != nil && !errors.Is(err, bridge.ErrClosed) {
		log.Warn("barrier before shutdown failed", "error", err)
	}
	return sess.Close()
}

// replay dispatches events read as JSON lines: {"id": 1, "name": "tap",
// "data": {...}}. Blank lines and lines starting with # are skipped, and
// malformed lines are logged.
func (c *RunCommand) replay(ctx context.Context, sess *bridge.Session) error {
	var r io.Reader = c.stdin
	if c.events != "-" {
		f, err := os.Open(c.events)
		if err != nil {
			return fmt.Errorf("failed to open events: %w", err)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := parseEvent(line)
		if err != nil {
			sess.Logger().Warn("skipping event", "line", n, "error", err)
			continue
		}
		if err := sess.Events().Dispatch(ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseEvent(line string) (bridge.Event, error) {
	v, err := value.ParseJSON([]byte(line))
	if err != nil {
		return bridge.Event{}, err
	}
	id, ok := v.Field("id").AsNumber()
	if !ok || id < 0 || id != float64(uint64(id)) {
		return bridge.Event{}, fmt.Errorf("event id must be a non-negative integer")
	}
	name, ok := v.Field("name").AsString()
	if !ok {
		return bridge.Event{}, fmt.Errorf("event name must be a string")
	}
	return bridge.Event{ID: uint64(id), Name: name, Data: v.Field("data")}, nil
}

func (c *RunCommand) runTUI(ctx context.Context, loader scripting.ResourceLoader, opts bridge.Options, source string, stdout io.Writer) error {
	var sess *bridge.Session
	model := tui.NewModel(tui.Options{
		Dispatch: func(id uint64, name string, data value.Value) error {
			return sess.DispatchEvent(id, name, data)
		},
		Diagnostics: opts.Logger.Recent,
		Logger:      opts.Logger.Slog(),
		Title:       "elmhost: " + source,
	})
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithInput(c.stdin),
		tea.WithOutput(stdout),
	)

	sess, err := bridge.NewSession(ctx, tui.NewRenderer(p), opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Start(loader); err != nil {
		return err
	}
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	if cerr := sess.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		opts.Logger.Error("terminal UI exited", slog.Any("error", err))
	}
	return err
}
