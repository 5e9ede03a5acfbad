package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDir returns the per-user directory holding licensegate state,
// e.g. ~/.config/licensegate on Linux.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultStatePath returns the default location of the file backend.
// It falls back to the working directory when no user config dir exists.
func DefaultStatePath() string {
	dir, err := ConfigDir()
	if err != nil {
		return StateFileName
	}
	return filepath.Join(dir, StateFileName)
}

// DefaultLogPath returns the default log file location
func DefaultLogPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join("logs", LogFileName)
	}
	return filepath.Join(dir, "logs", LogFileName)
}

// EnsureParentDir creates the directory containing path
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
