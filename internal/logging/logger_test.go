package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storypack/internal/config"
	"storypack/internal/faults"
	"storypack/internal/logging"
)

func TestConsoleLoggerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "transfer")
	logger.Info("archive imported", logging.String(logging.FieldContentID, "9D9521E5"), logging.Int("entries", 3))
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "INFO  transfer: archive imported") {
		t.Fatalf("unexpected console line %q", out)
	}
	if !strings.Contains(out, "content_id=9D9521E5 entries=3") {
		t.Fatalf("expected attributes in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", out)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cause := faults.Wrap(faults.ErrNotFound, "export", "resolve", "", nil)
	logging.WarnWithContext(logger, "export skipped", "export_skipped", logging.Error(cause), logging.ErrorKind(cause))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts key")
	}
	if record[logging.FieldEventType] != "export_skipped" {
		t.Fatalf("unexpected event type %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorKind] != "not_found" {
		t.Fatalf("unexpected error kind %v", record[logging.FieldErrorKind])
	}
	if record[logging.FieldImpact] == nil || record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default impact and hint")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	logger, err := logging.NewFromConfig(&cfg, false)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "storypack.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log file missing message: %q", data)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := logging.New(logging.Options{Format: "console", Writer: &buf})
	ctx := logging.WithContentID(logging.WithDevice(context.Background(), "2302F0"), "22137B29")
	logging.WithContext(ctx, logger).Info("step")
	out := buf.String()
	if !strings.Contains(out, "device=2302F0") || !strings.Contains(out, "content_id=22137B29") {
		t.Fatalf("expected context fields in %q", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("ignored", logging.Error(errors.New("x")))
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should never be enabled")
	}
}
