package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitWithFile(t *testing.T) {
	defer func() { _ = Close() }()

	path := filepath.Join(t.TempDir(), "chatwire.log")
	if err := Init(Config{Level: "debug", Format: "json", File: path}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestGetBeforeInit(t *testing.T) {
	mu.Lock()
	initialized = false
	mu.Unlock()

	if Get() == nil {
		t.Fatal("Get returned nil before Init")
	}
}
