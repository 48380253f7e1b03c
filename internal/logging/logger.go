// Package logging builds the service's zerolog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/config"
)

// New creates the structured logger described by cfg. The returned closer
// releases the log file when output points at one; it is a no-op otherwise.
func New(cfg config.LoggingConfig, service string) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		output = file
		closer = file
	}

	if cfg.Format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Output != "stdout" && cfg.Output != "stderr" && cfg.Output != "",
		}
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp().Str("service", service)
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}

	return ctx.Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
