package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "JSON")
	logger.Debug("hidden")
	logger.Info("agent profile loaded", "clients", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", lines[0], err)
	}
	if entry["service"] != "wa-cobranzas" || entry["msg"] != "agent profile loaded" || entry["clients"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormatDefault(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "").Debug("tick", "remaining", 5)
	out := buf.String()
	if !strings.Contains(out, "msg=tick") || !strings.Contains(out, "remaining=5") {
		t.Fatalf("unexpected text output %q", out)
	}
}
