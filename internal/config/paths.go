// Package config loads parley settings from defaults, ~/.parley/config.yaml and
// PARLEY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigDir returns the per-user directory (~/.parley).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// DefaultConfigPath returns ~/.parley/config.yaml.
func DefaultConfigPath() (string, error) {
	return inConfigDir("config.yaml")
}

// DefaultHistoryPath returns the conversation history database path.
func DefaultHistoryPath() (string, error) {
	return inConfigDir("history.db")
}

// DefaultSessionPath is where `parley init` points dialogue.session_path.
func DefaultSessionPath() (string, error) {
	return inConfigDir("session.bin")
}

func inConfigDir(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ExpandPath expands ~ prefix in path to user home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}

	if path == "~" {
		return os.UserHomeDir()
	}

	return path, nil
}
