package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("Group created", "group_id", "g1")
	logger.Warn("Row identity mismatch", "group_id", "g1")

	out := buf.String()
	if strings.Contains(out, "Group created") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "Row identity mismatch") || !strings.Contains(out, "group_id=g1") {
		t.Errorf("expected warn line with attrs, got %q", out)
	}
}
