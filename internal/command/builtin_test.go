package command

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeycumines/elmhost/internal/config"
)

func execute(t *testing.T, cmd Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := cmd.Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestHelpCommand(t *testing.T) {
	r := NewRegistry()
	help := NewHelpCommand(r)
	r.Register(help)
	r.Register(NewVersionCommand("1.0.0"))
	r.Register(NewRunCommand(nil))

	out, _, err := execute(t, help)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"elmhost", "Commands:", "help", "run", "Run a compiled program", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("general help missing %q:\n%s", want, out)
		}
	}

	out, _, err = execute(t, help, "run")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Command: run", "Usage: elmhost run", "Flags:", "-headless", "-call-timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("run help missing %q:\n%s", want, out)
		}
	}

	out, _, _ = execute(t, help, "version")
	if strings.Contains(out, "Flags:") {
		t.Errorf("version has no flags:\n%s", out)
	}

	_, errOut, err := execute(t, help, "nope")
	if err == nil || !strings.Contains(errOut, "Unknown command: nope") {
		t.Errorf("expected unknown command, got %v %q", err, errOut)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, NewVersionCommand("9.9.9"))
	if err != nil || out != "elmhost version 9.9.9\n" {
		t.Fatalf("got %q, %v", out, err)
	}
	if _, _, err := execute(t, NewVersionCommand("1"), "extra"); err == nil {
		t.Fatal("expected error for extra arguments")
	}
}

func TestConfigCommand_GetAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	cfg := config.NewConfig()
	cmd := NewConfigCommand(cfg, path)

	out, _, err := execute(t, cmd, config.KeyUIMode)
	if err != nil || out != "ui.mode: auto\n" {
		t.Fatalf("default get: %q %v", out, err)
	}

	out, _, err = execute(t, cmd, config.KeyUIMode, config.UIModeHeadless)
	if err != nil || !strings.Contains(out, "Set configuration: ui.mode = headless") {
		t.Fatalf("set: %q %v", out, err)
	}
	if v, _ := cfg.GetGlobalOption(config.KeyUIMode); v != config.UIModeHeadless {
		t.Errorf("in-memory value %q", v)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "ui.mode headless\n" {
		t.Fatalf("persisted %q %v", data, err)
	}

	out, _, _ = execute(t, cmd, config.KeyUIMode)
	if out != "ui.mode: headless\n" {
		t.Errorf("get after set: %q", out)
	}

	out, _, _ = execute(t, cmd, "no.such")
	if !strings.Contains(out, "not found") {
		t.Errorf("unknown get: %q", out)
	}
}

func TestConfigCommand_RejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	cmd := NewConfigCommand(config.NewConfig(), path)

	if _, _, err := execute(t, cmd, "no.such", "1"); err == nil {
		t.Error("expected unknown option error")
	}
	_, errOut, err := execute(t, cmd, config.KeyScriptSyncTimeout, "soon")
	if err == nil || !strings.Contains(errOut, "expected duration") {
		t.Errorf("expected type error, got %v %q", err, errOut)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("nothing must be written, stat err %v", err)
	}
	if _, _, err := execute(t, cmd, "a", "b", "c"); err == nil {
		t.Error("expected argument count error")
	}
}

func TestConfigCommand_ValidateSchemaAll(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("ui.mode tui\n[run]\nlog.level debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	cmd := NewConfigCommand(cfg, "")

	out, _, err := execute(t, cmd, "validate")
	if err != nil || !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("validate: %q %v", out, err)
	}

	out, _, _ = execute(t, cmd, "schema")
	if !strings.Contains(out, config.KeyProgramNamespace) {
		t.Errorf("schema: %q", out)
	}

	cmd.showAll = true
	out, _, _ = execute(t, cmd)
	for _, want := range []string{"ui.mode", "tui", "[run]", "log.level", "debug", "program.resource", "compiledElm.js"} {
		if !strings.Contains(out, want) {
			t.Errorf("--all missing %q:\n%s", want, out)
		}
	}

	cfg.SetGlobalOption("bogus", "1")
	out, _, err = execute(t, NewConfigCommand(cfg, ""), "validate")
	if err == nil || !strings.Contains(out, "1 issue(s)") {
		t.Errorf("validate with issue: %q %v", out, err)
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".elmhost", "config")
	cmd := NewInitCommand(path)

	out, _, err := execute(t, cmd)
	if err != nil || !strings.Contains(out, "Initialized configuration at: "+path) {
		t.Fatalf("init: %q %v", out, err)
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HasWarnings() {
		t.Errorf("starter config has warnings: %v", cfg.Warnings)
	}

	if err := os.WriteFile(path, []byte("ui.mode tui\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, _ = execute(t, cmd)
	if !strings.Contains(out, "already exists") {
		t.Errorf("second init: %q", out)
	}

	cmd.force = true
	if _, _, err := execute(t, cmd); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "program.resource compiledElm.js") {
		t.Errorf("force did not overwrite: %q", data)
	}
}
