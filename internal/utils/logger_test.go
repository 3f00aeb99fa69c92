package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComponentLoggerTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	Component("coordinator").Info("sync settled", "attempt", 1)

	out := buf.String()
	if !strings.Contains(out, "component=coordinator") {
		t.Errorf("Expected component attribute, got: %s", out)
	}
	if !strings.Contains(out, "attempt=1") {
		t.Errorf("Expected attempt attribute, got: %s", out)
	}
}

func TestComponentLoggerFollowsReconfigure(t *testing.T) {
	log := Component("monitor")

	var first, second bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&first)
	log.Info("one")
	logger.SetOutput(&second)
	log.Info("two")
	logger.SetOutput(os.Stderr)

	if !strings.Contains(first.String(), "one") || strings.Contains(first.String(), "two") {
		t.Errorf("first buffer has wrong content: %s", first.String())
	}
	if !strings.Contains(second.String(), "two") {
		t.Errorf("second buffer missing record: %s", second.String())
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)
	defer logger.SetVerbose(false)

	log := Component("test")
	logger.SetVerbose(false)
	log.Debug("hidden", "n", 1)
	if strings.Contains(buf.String(), "hidden") {
		t.Error("Debug output should be suppressed when not verbose")
	}

	logger.SetVerbose(true)
	log.Debug("shown", "n", 2)
	if !strings.Contains(buf.String(), "msg=shown") || !strings.Contains(buf.String(), "n=2") {
		t.Errorf("Debug output should appear when verbose, got: %s", buf.String())
	}
}

func TestConfigureWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	logger := GetLogger()
	if err := logger.Configure(LogOptions{Level: "info", Format: "json", File: path}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	Component("daemon").Info("started")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	logger.SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"daemon"`) {
		t.Errorf("Expected JSON record with component, got: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"debug", false},
		{"INFO", false},
		{"warning", false},
		{"error", false},
		{"loud", true},
	}

	for _, tt := range tests {
		_, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	if err := GetLogger().Configure(LogOptions{Format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}
