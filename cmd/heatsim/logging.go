package main

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/talgya/heatsim/internal/config"
)

// setupLogging installs the default slog logger. When a log file is
// configured, output is tee'd to a rotating file; the returned closer
// releases it.
func setupLogging(cfg config.LogConfig, stdout io.Writer) (io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	w := stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = io.MultiWriter(stdout, file)
		closer = file
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return closer, nil
}
