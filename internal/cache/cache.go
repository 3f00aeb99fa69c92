// Package cache keeps the outcome of the last sync cycle on disk so that
// separate CLI processes (a background sync, a later status call) can share it.
package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	backendsync "fieldsync/backend/sync"
)

// SyncSummary is the persisted outcome of one sync cycle
type SyncSummary struct {
	At       time.Time `json:"at"`
	Pushed   int       `json:"pushed"`
	Pulled   int       `json:"pulled"`
	Waiting  int       `json:"waiting"`
	Failed   int       `json:"failed"`
	Duration string    `json:"duration,omitempty"`
	Error    string    `json:"error,omitempty"`
	// Alert survives until a later cycle succeeds
	Alert string `json:"alert,omitempty"`
}

// Succeeded reports whether the cycle finished without an error
func (s *SyncSummary) Succeeded() bool {
	return s.Error == ""
}

// Summarize builds a summary from a cycle's result and error
func Summarize(result *backendsync.SyncResult, err error, alert string, at time.Time) SyncSummary {
	s := SyncSummary{At: at, Alert: alert}
	if result != nil {
		s.Pushed = result.PushedRecords
		s.Pulled = result.PulledRecords
		s.Waiting = result.WaitingRecords
		s.Failed = result.FailedRecords
		s.Duration = result.Duration.Round(time.Millisecond).String()
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// GetCacheDir returns the XDG-compliant cache directory path
func GetCacheDir() (string, error) {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, "fieldsync")
	return cacheDir, os.MkdirAll(cacheDir, 0755)
}

// GetCacheFile returns the full path to the last-sync file
func GetCacheFile() (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "last_sync.json"), nil
}

// LoadLastSync returns the stored summary. ok is false when none was saved.
func LoadLastSync() (summary *SyncSummary, ok bool, err error) {
	cacheFile, err := GetCacheFile()
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(cacheFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached SyncSummary
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, err
	}
	return &cached, true, nil
}

// SaveLastSync writes summary through a temp file and rename, since a
// background process may write while another reads.
func SaveLastSync(summary SyncSummary) error {
	cacheFile, err := GetCacheFile()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}

	tmp := cacheFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, cacheFile)
}
