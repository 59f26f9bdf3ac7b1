package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType is the expected type of an option value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
	// TypeChoice restricts the value to ConfigOption.Choices.
	TypeChoice OptionType = "choice"
)

// ConfigOption declares one option.
type ConfigOption struct {
	// Key is the option name as it appears in the file.
	Key         string
	Type        OptionType
	Default     string
	Description string
	// Section is "" for global options, or a command name.
	Section string
	// EnvVar, if set, overrides the file value.
	EnvVar string
	// Choices lists the accepted values of a TypeChoice option.
	Choices []string
}

// ConfigSchema declares the known options, for validation, help output and
// environment overrides.
type ConfigSchema struct {
	options   []*ConfigOption
	byKey     map[string]*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

func NewSchema() *ConfigSchema {
	return &ConfigSchema{
		byKey:     make(map[string]*ConfigOption),
		bySection: make(map[string]map[string]*ConfigOption),
	}
}

// Register adds an option. A later registration of the same key in the same
// section replaces the earlier one for lookups.
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := &opt
	s.options = append(s.options, ref)
	if opt.Section == "" {
		s.byKey[opt.Key] = ref
		return
	}
	if s.bySection[opt.Section] == nil {
		s.bySection[opt.Section] = make(map[string]*ConfigOption)
	}
	s.bySection[opt.Section][opt.Key] = ref
}

func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the option for key in section ("" for global), or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	if section == "" {
		return s.byKey[key]
	}
	return s.bySection[section][key]
}

// IsKnown reports whether key may appear in section. Global keys are allowed
// in every section.
func (s *ConfigSchema) IsKnown(section, key string) bool {
	return s.Lookup(section, key) != nil || s.byKey[key] != nil
}

// SectionOptions returns the options of section in registration order.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted non-global section names.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		out = append(out, sec)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the effective value of key for command, checking the
// option's environment variable, then the command section, then the global
// section, then the default.
func (s *ConfigSchema) Resolve(c *Config, command, key string) string {
	opt := s.Lookup(command, key)
	if opt == nil {
		opt = s.Lookup("", key)
	}
	if opt != nil && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetCommandOption(command, key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig returns the sorted list of problems with c: unknown options
// and values that do not match their declared type.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := opt.validate(value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	for section, opts := range c.Commands {
		for key, value := range opts {
			opt := s.Lookup(section, key)
			if opt == nil {
				opt = s.Lookup("", key)
			}
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option for command %q: %q (value: %q)", section, key, value))
				continue
			}
			if err := opt.validate(value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func (o *ConfigOption) validate(value string) error {
	switch o.Type {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	case TypeChoice:
		if !slices.Contains(o.Choices, value) {
			return fmt.Errorf("expected one of %s, got %q", strings.Join(o.Choices, "|"), value)
		}
	default:
		return fmt.Errorf("unknown option type %q", o.Type)
	}
	return nil
}

// FormatHelp renders every option, grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	if globals := s.SectionOptions(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range s.SectionOptions(sec) {
			writeOptionHelp(&b, o)
		}
	}
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-28s %s", o.Key, o.Description)
	var parts []string
	switch o.Type {
	case TypeString, "":
	case TypeChoice:
		parts = append(parts, "one of: "+strings.Join(o.Choices, "|"))
	default:
		parts = append(parts, "type: "+string(o.Type))
	}
	if o.Default != "" {
		parts = append(parts, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		parts = append(parts, "env: "+o.EnvVar)
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// Option keys.
const (
	KeyProgramDir          = "program.dir"
	KeyProgramResource     = "program.resource"
	KeyProgramNamespace    = "program.namespace"
	KeyProgramStart        = "program.start"
	KeyProgramEventHandler = "program.event-handler"
	KeyScriptSyncTimeout   = "script.sync-timeout"
	KeyScriptCallTimeout   = "script.call-timeout"
	KeyRenderStrictInitial = "render.strict-initial"
	KeyUIMode              = "ui.mode"
	KeyLogFile             = "log.file"
	KeyLogLevel            = "log.level"
	KeyLogMaxSizeMB        = "log.max-size-mb"
	KeyLogMaxFiles         = "log.max-files"
	KeyLogBufferSize       = "log.buffer-size"
)

// UI modes.
const (
	UIModeAuto     = "auto"
	UIModeTUI      = "tui"
	UIModeHeadless = "headless"
)

// DefaultSchema returns every option elmhost understands.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll([]ConfigOption{
		{Key: KeyProgramDir, Default: ".", Description: "Directory the program resource is loaded from", EnvVar: "ELMHOST_PROGRAM_DIR"},
		{Key: KeyProgramResource, Default: "compiledElm.js", Description: "Name of the compiled program resource"},
		{Key: KeyProgramNamespace, Default: "Elm.Main", Description: "Dotted path of the program namespace"},
		{Key: KeyProgramStart, Default: "start", Description: "Entry point called once the program is evaluated"},
		{Key: KeyProgramEventHandler, Default: "handleEvent", Description: "Entry point receiving UI events"},
		{Key: KeyScriptSyncTimeout, Type: TypeDuration, Default: "5s", Description: "Bound on synchronous calls into the script context"},
		{Key: KeyScriptCallTimeout, Type: TypeDuration, Description: "Interrupt script calls running longer than this"},
		{Key: KeyRenderStrictInitial, Type: TypeBool, Default: "false", Description: "Drop initialRender calls after the first"},
		{Key: KeyUIMode, Type: TypeChoice, Default: UIModeAuto, Choices: []string{UIModeAuto, UIModeTUI, UIModeHeadless}, Description: "Presentation mode", EnvVar: "ELMHOST_UI"},
		{Key: KeyLogFile, Description: "Append JSON logs to this file", EnvVar: "ELMHOST_LOG_FILE"},
		{Key: KeyLogLevel, Type: TypeChoice, Default: "info", Choices: []string{"debug", "info", "warn", "error"}, Description: "Minimum level written to the log file", EnvVar: "ELMHOST_LOG_LEVEL"},
		{Key: KeyLogMaxSizeMB, Type: TypeInt, Default: "10", Description: "Rotate the log file at this size"},
		{Key: KeyLogMaxFiles, Type: TypeInt, Default: "5", Description: "Rotated log files to keep"},
		{Key: KeyLogBufferSize, Type: TypeInt, Default: "1000", Description: "In-memory log entries kept per session"},
	})
	return s
}
