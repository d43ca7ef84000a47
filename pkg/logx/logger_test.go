package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("trigger", "backup"))
	log.Info("trigger fired", Int("second", 0), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if m["message"] != "trigger fired" || m["trigger"] != "backup" || m["err"] != "boom" {
		t.Fatalf("unexpected record: %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logger_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with level")
	}
}

func TestZeroAndNopAreSafe(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	zero.Warn("nothing")
	Nop().Error("nothing")
	if Nop().IsZero() {
		t.Fatal("Nop is a configured logger")
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("to file")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("dropped")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "to file") || strings.Contains(string(b), "dropped") {
		t.Fatalf("log content = %q", b)
	}
}
