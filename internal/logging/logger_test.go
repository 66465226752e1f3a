package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"cloudpico-envnode/internal/config"
)

func TestNewWithWriter_ReleaseIsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}

	logger := NewWithWriter(&buf, cfg, "1.2.3", "envnode")
	logger.Info("cycle complete", "battery_mv", 3700)
	logger.Debug("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]any{
		"msg":        "cycle complete",
		"app":        "envnode",
		"version":    "1.2.3",
		"env":        "prod",
		"battery_mv": float64(3700),
	} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %v", key, rec[key], want)
		}
	}
}

func TestNewWithWriter_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}

	logger := NewWithWriter(&buf, cfg, "dev", "envnode")
	logger.Debug("bus probe", "addr", "0x44")

	out := buf.String()
	if json.Valid([]byte(strings.TrimSpace(out))) {
		t.Fatalf("dev output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "bus probe") || !strings.Contains(out, "envnode") {
		t.Errorf("output %q missing message or app name", out)
	}
}

func TestNewWithWriter_EnvSelectsHandler(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}

	// An untagged build still logs JSON in prod.
	NewWithWriter(&buf, cfg, "dev", "envnode").Info("node running")

	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("prod output should be JSON: %q", buf.String())
	}
}
