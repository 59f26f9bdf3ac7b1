package config

import (
	"os"
	"path/filepath"
	"testing"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	return string(data)
}

func TestSetKeyInFile_NewFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config")

	if err := SetKeyInFile(path, KeyUIMode, UIModeHeadless); err != nil {
		t.Fatalf("SetKeyInFile returned error: %v", err)
	}
	if got := readFile(t, path); got != "ui.mode headless\n" {
		t.Fatalf("unexpected content %q", got)
	}

	c, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := c.GetGlobalOption(KeyUIMode); !ok || v != UIModeHeadless {
		t.Fatalf("expected ui.mode=headless after round-trip, got %q exists=%v", v, ok)
	}
}

func TestSetKeyInFile_ReplacesInPlace(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	initial := "# header\nlog.level info\nui.mode tui\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SetKeyInFile(path, KeyLogLevel, "debug"); err != nil {
		t.Fatal(err)
	}
	if got, want := readFile(t, path), "# header\nlog.level debug\nui.mode tui\n"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSetKeyInFile_InsertsBeforeSections(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	initial := "ui.mode tui\n\n[run]\nlog.level warn\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SetKeyInFile(path, KeyLogLevel, "error"); err != nil {
		t.Fatal(err)
	}
	want := "ui.mode tui\n\nlog.level error\n[run]\nlog.level warn\n"
	if got := readFile(t, path); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	c, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := c.GetCommandOption("run", KeyLogLevel); v != "warn" {
		t.Errorf("section value must survive, got %q", v)
	}
	if v, _ := c.GetGlobalOption(KeyLogLevel); v != "error" {
		t.Errorf("global value %q", v)
	}
}

func TestSetKeyInFile_EmptyValue(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	if err := SetKeyInFile(path, KeyLogFile, ""); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, path); got != "log.file\n" {
		t.Fatalf("unexpected content %q", got)
	}
}
