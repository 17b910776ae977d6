package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/merliot/wifista"
	"gopkg.in/natefinch/lumberjack.v2"
)

func slogLevel(level string) slog.Level {
	switch wifista.ParseLevel(level) {
	case wifista.LevelDebug:
		return slog.LevelDebug
	case wifista.LevelWarn:
		return slog.LevelWarn
	case wifista.LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger logs to w, or to a rotated cfg.File when set.  The returned
// closer closes the log file.
func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level)}
	if cfg.File == "" {
		if w == nil {
			w = os.Stderr
		}
		return slog.New(slog.NewTextHandler(w, opts)), io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return slog.New(slog.NewTextHandler(lj, opts)), lj
}

// slogLogger feeds wifista log lines into slog, with the tag as an attribute
type slogLogger struct {
	log *slog.Logger
}

func (s slogLogger) Logf(level wifista.Level, tag, format string, args ...any) {
	lvl := slog.LevelInfo
	switch level {
	case wifista.LevelError:
		lvl = slog.LevelError
	case wifista.LevelWarn:
		lvl = slog.LevelWarn
	case wifista.LevelDebug:
		lvl = slog.LevelDebug
	}
	s.log.Log(context.Background(), lvl, fmt.Sprintf(format, args...), "tag", tag)
}
