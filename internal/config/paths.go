package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigDir returns the default configuration directory (~/.agentrun).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".agentrun"), nil
}

// DefaultConfigPath returns the default configuration file path (~/.agentrun/config.yaml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDataPath returns the default database file path (~/.agentrun/agentrun.db).
func DefaultDataPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentrun.db"), nil
}

// ExpandPath expands a leading ~ to the user home directory.
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

// ResolveRelative resolves p against the directory of the loaded config file.
// Absolute paths and paths starting with ~ are only expanded.
func ResolveRelative(p string) (string, error) {
	expanded, err := ExpandPath(p)
	if err != nil || expanded == "" || filepath.IsAbs(expanded) {
		return expanded, err
	}
	base := Path()
	if base == "" {
		return expanded, nil
	}
	return filepath.Join(filepath.Dir(base), expanded), nil
}
