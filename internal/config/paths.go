package config

import (
	"os"
	"path/filepath"
)

// CuratorPath returns the curator home directory.
func CuratorPath() string {
	if v := os.Getenv("CURATOR_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".curator")
	}
	return filepath.Join(home, ".curator")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(CuratorPath(), "config.jsonc")
}

// DotenvPath returns the path to the curator .env file.
func DotenvPath() string {
	return filepath.Join(CuratorPath(), ".env")
}
