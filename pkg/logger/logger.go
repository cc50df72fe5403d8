// Package logger holds the process-wide zerolog logger. Call Init once from
// main and Get everywhere else.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Init.
type Options struct {
	// Level is one of trace, debug, info, warn or error. Anything else means info.
	Level string
	// Pretty switches stdout to the coloured console format. Files are always JSON.
	Pretty bool
	// Output replaces os.Stdout.
	Output io.Writer
	// File, when set, also receives every line and is rotated by size.
	File string
}

// rotation limits for Options.File
const (
	fileMaxSizeMB  = 100
	fileMaxBackups = 5
	fileMaxAgeDays = 28
)

var (
	mu      sync.Mutex
	current *zerolog.Logger
)

// Init builds the logger on first call and returns it. Later calls return the
// existing logger and ignore opts.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return *current
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := parseLevel(opts.Level)
	zerolog.SetGlobalLevel(level)

	l := zerolog.New(writer(opts)).Level(level).With().Timestamp().Caller().Logger()
	current = &l
	return l
}

// Get returns the logger built by Init and panics without one.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		panic("logger: Get() called before Init()")
	}
	return *current
}

// Reset drops the logger so the next Init builds a new one. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}

func writer(opts Options) io.Writer {
	var console io.Writer = os.Stdout
	if opts.Output != nil {
		console = opts.Output
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	if opts.File == "" {
		return console
	}
	return zerolog.MultiLevelWriter(console, &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		Compress:   true,
	})
}

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

func parseLevel(s string) zerolog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}
