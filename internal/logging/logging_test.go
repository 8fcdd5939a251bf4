package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "notefeed.log")

	log, closer, err := Setup(model.LogConfig{Level: "warn", File: path}, Options{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	log.Info("dropped")
	log.WithField("note_id", 7).Warn("kept")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above the level, got %q", data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "kept" || entry["note_id"] != float64(7) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetupVerboseForcesDebug(t *testing.T) {
	log, closer, err := Setup(model.LogConfig{Level: "error"}, Options{Verbose: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer closer.Close()

	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, _, err := Setup(model.LogConfig{Level: "chatty"}, Options{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
