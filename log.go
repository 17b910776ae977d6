package wifista

import (
	"fmt"
	"io"
	"os"
)

// Level is a log verbosity level.  Lower levels are more severe.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) letter() byte {
	switch l {
	case LevelError:
		return 'E'
	case LevelWarn:
		return 'W'
	case LevelInfo:
		return 'I'
	}
	return 'D'
}

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	}
	return "debug"
}

// ParseLevel maps "error", "warn", "info" or "debug" to a Level.  Anything
// else is LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug":
		return LevelDebug
	}
	return LevelInfo
}

// Logger is where the manager and drivers send their log lines.  Tag names
// the component logging, much like a module TAG on the device.
type Logger interface {
	Logf(level Level, tag, format string, args ...any)
}

type printLogger struct {
	out io.Writer
	max Level
}

// NewPrintLogger returns a Logger writing "I (tag) message" lines to w.
// Lines above level are dropped.
func NewPrintLogger(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &printLogger{out: w, max: level}
}

func (p *printLogger) Logf(level Level, tag, format string, args ...any) {
	if level > p.max {
		return
	}
	fmt.Fprintf(p.out, "%c (%s) %s\r\n", level.letter(), tag, fmt.Sprintf(format, args...))
}

type nopLogger struct{}

func (nopLogger) Logf(Level, string, string, ...any) {}

// NopLogger discards everything
var NopLogger Logger = nopLogger{}
