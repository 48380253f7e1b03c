package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closer, err := New(config.LoggingConfig{Level: tt.level, Format: "json", Output: "stderr"}, "test")
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			defer closer.Close()

			if logger.GetLevel() != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, logger.GetLevel())
			}
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path}, "mom-live")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	logger.Info().Str("component", "test").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Failed to close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	line := string(data)
	for _, want := range []string{`"service":"mom-live"`, `"component":"test"`, `"message":"hello"`} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected log line to contain %s, got %s", want, line)
		}
	}
}

func TestNewBadFile(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: filepath.Join(t.TempDir(), "missing", "x.log")}, "test")
	if err == nil {
		t.Errorf("Expected error for unwritable log path")
	}
}
