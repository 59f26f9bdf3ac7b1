package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// SetKeyInFile sets a global option in the file at path, creating it if
// needed. An existing global line for key is replaced in place; otherwise the
// line is inserted before the first section header, or appended. Comments,
// ordering and section options are preserved. The file is replaced
// atomically.
func SetKeyInFile(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	entry := strings.TrimSpace(key + " " + value)

	var lines []string
	if len(data) > 0 {
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}

	insertAt := len(lines)
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			insertAt = i
			break
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines[:insertAt], append([]string{entry}, lines[insertAt:]...)...)
	}

	return WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"))
}

// WriteFile atomically replaces the file at path with data, creating the
// parent directory if needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}
