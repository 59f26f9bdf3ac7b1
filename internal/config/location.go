package config

import (
	"os"
	"path/filepath"
)

// ConfigEnvVar overrides the configuration file location.
const ConfigEnvVar = "ELMHOST_CONFIG"

// GetConfigPath returns $ELMHOST_CONFIG if set, else ~/.elmhost/config.
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".elmhost", "config"), nil
}
