// Package logging builds the process logger: JSON lines on stderr, plus a
// rotated file when one is configured.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"sheettracker/api/internal/config"
)

// New returns the logger and a closer for the file sink, if any.
func New(cfg config.LogConfig, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if console == nil {
		console = os.Stderr
	}

	writer := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := newLumberjack(cfg)
		writer = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	log := zerolog.New(writer).Level(level).With().Timestamp().Str("service", "sheetd").Logger()
	return log, closer, nil
}

func newLumberjack(cfg config.LogConfig) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	}
}

func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
