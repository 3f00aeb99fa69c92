package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	backendsync "fieldsync/backend/sync"
)

func TestGetCacheDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmp)

	dir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("GetCacheDir() error = %v", err)
	}
	if dir != filepath.Join(tmp, "fieldsync") {
		t.Errorf("GetCacheDir() = %q", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}
}

func TestLoadLastSync_Missing(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	summary, ok, err := LoadLastSync()
	if err != nil || ok || summary != nil {
		t.Errorf("LoadLastSync() = %v, %v, %v; want nil, false, nil", summary, ok, err)
	}
}

func TestSaveAndLoadLastSync(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	result := &backendsync.SyncResult{PushedRecords: 2, PulledRecords: 7, WaitingRecords: 1, Duration: 1500 * time.Millisecond}
	if err := SaveLastSync(Summarize(result, nil, "", at)); err != nil {
		t.Fatalf("SaveLastSync() error = %v", err)
	}

	got, ok, err := LoadLastSync()
	if err != nil || !ok {
		t.Fatalf("LoadLastSync() ok=%v err=%v", ok, err)
	}
	if !got.At.Equal(at) || got.Pushed != 2 || got.Pulled != 7 || got.Waiting != 1 {
		t.Errorf("unexpected summary: %+v", got)
	}
	if got.Duration != "1.5s" || !got.Succeeded() {
		t.Errorf("unexpected summary: %+v", got)
	}

	cacheFile, _ := GetCacheFile()
	if _, err := os.Stat(cacheFile + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestSummarizeFailure(t *testing.T) {
	s := Summarize(nil, errors.New("server unreachable"), "Sync failed", time.Now())
	if s.Succeeded() || s.Error != "server unreachable" || s.Alert != "Sync failed" {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestLoadLastSync_Corrupt(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	cacheFile, _ := GetCacheFile()
	if err := os.WriteFile(cacheFile, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadLastSync(); err == nil {
		t.Error("Expected error for corrupt cache file")
	}
}
