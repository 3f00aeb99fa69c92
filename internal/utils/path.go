package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppDirName is the directory fieldsync uses under the user config and data dirs
const AppDirName = "fieldsync"

// ExpandPath expands ~ and environment variables in file paths
// Examples:
//   - "~/data/fieldsync.db" -> "/home/user/data/fieldsync.db"
//   - "$XDG_DATA_HOME/fieldsync" -> "/home/user/.local/share/fieldsync"
//   - "/abs/path" -> "/abs/path" (unchanged)
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		path = filepath.Join(homeDir, path[2:])
	}

	return path, nil
}

// DataDir returns $XDG_DATA_HOME/fieldsync, falling back to
// ~/.local/share/fieldsync
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppDirName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", AppDirName), nil
}

// DefaultDatabasePath is where the local store lives unless configured
func DefaultDatabasePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fieldsync.db"), nil
}

// EnsureParentDir creates the directory holding path
func EnsureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
