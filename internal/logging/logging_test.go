package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sheettracker/api/internal/config"
)

func TestNewWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(config.LogConfig{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("op", "createTopic").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "visible" || entry["op"] != "createTopic" || entry["service"] != "sheetd" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetd.log")
	var buf bytes.Buffer
	log, closer, err := New(config.LogConfig{Level: "info", File: path}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info().Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Errorf("expected the entry in file and console")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
