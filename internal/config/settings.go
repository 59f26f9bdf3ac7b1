package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Settings is the typed, resolved form of the options for one command.
type Settings struct {
	ProgramDir          string
	ProgramResource     string
	ProgramNamespace    []string
	ProgramStart        string
	ProgramEventHandler string
	SyncTimeout         time.Duration
	CallTimeout         time.Duration
	StrictInitialRender bool
	UIMode              string
	LogFile             string
	LogLevel            slog.Level
	LogMaxSizeMB        int
	LogMaxFiles         int
	LogBufferSize       int
}

// Resolve computes the Settings for command from c (which may be nil),
// the environment and the schema defaults. Invalid values are errors here,
// unlike at load time.
func Resolve(c *Config, s *ConfigSchema, command string) (Settings, error) {
	r := resolver{c: c, s: s, command: command}
	st := Settings{
		ProgramDir:          r.str(KeyProgramDir),
		ProgramResource:     r.str(KeyProgramResource),
		ProgramStart:        r.str(KeyProgramStart),
		ProgramEventHandler: r.str(KeyProgramEventHandler),
		SyncTimeout:         r.duration(KeyScriptSyncTimeout),
		CallTimeout:         r.duration(KeyScriptCallTimeout),
		StrictInitialRender: r.bool(KeyRenderStrictInitial),
		UIMode:              r.choice(KeyUIMode),
		LogFile:             r.str(KeyLogFile),
		LogMaxSizeMB:        r.int(KeyLogMaxSizeMB),
		LogMaxFiles:         r.int(KeyLogMaxFiles),
		LogBufferSize:       r.int(KeyLogBufferSize),
	}
	if ns := r.str(KeyProgramNamespace); ns != "" {
		st.ProgramNamespace = strings.Split(ns, ".")
	}
	if lvl := r.choice(KeyLogLevel); lvl != "" {
		if err := st.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			r.fail(KeyLogLevel, err)
		}
	}
	if r.err != nil {
		return Settings{}, r.err
	}
	return st, nil
}

type resolver struct {
	c       *Config
	s       *ConfigSchema
	command string
	err     error
}

func (r *resolver) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("option %q: %w", key, err)
	}
}

func (r *resolver) str(key string) string {
	return r.s.Resolve(r.c, r.command, key)
}

func (r *resolver) choice(key string) string {
	v := r.str(key)
	if v == "" {
		return ""
	}
	if opt := r.s.Lookup("", key); opt != nil {
		if err := opt.validate(v); err != nil {
			r.fail(key, err)
		}
	}
	return v
}

func (r *resolver) bool(key string) bool {
	v := r.str(key)
	if v == "" {
		return false
	}
	b, err := parseBool(v)
	if err != nil {
		r.fail(key, err)
	}
	return b
}

func (r *resolver) int(key string) int {
	v := r.str(key)
	if v == "" {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
	}
	return i
}

func (r *resolver) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
	}
	return d
}
