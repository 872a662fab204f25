package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Format selects how log lines are rendered.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	mu   sync.RWMutex
	base = newBase(os.Stderr, FormatConsole).Level(zerolog.InfoLevel)
)

func newBase(w io.Writer, format Format) zerolog.Logger {
	if format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Init replaces the process logger. Unknown levels fall back to info.
func Init(w io.Writer, level string, format Format) {
	if w == nil {
		w = os.Stderr
	}
	l := newBase(w, format).Level(ParseLevel(level))

	mu.Lock()
	base = l
	mu.Unlock()
}

// ParseLevel maps a config string to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Zerolog returns the underlying logger scoped to a component, for libraries
// that accept a zerolog.Logger directly.
func Zerolog(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}

func emit(level zerolog.Level, component, message string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	evt := l.WithLevel(level)
	if evt == nil {
		return
	}
	if component != "" {
		evt = evt.Str("component", component)
	}
	if len(fields) > 0 {
		evt = evt.Fields(fields)
	}
	evt.Msg(message)
}

func Debug(message string) { emit(zerolog.DebugLevel, "", message, nil) }
func Info(message string)  { emit(zerolog.InfoLevel, "", message, nil) }
func Warn(message string)  { emit(zerolog.WarnLevel, "", message, nil) }
func Error(message string) { emit(zerolog.ErrorLevel, "", message, nil) }

func DebugC(component, message string) { emit(zerolog.DebugLevel, component, message, nil) }
func InfoC(component, message string)  { emit(zerolog.InfoLevel, component, message, nil) }
func WarnC(component, message string)  { emit(zerolog.WarnLevel, component, message, nil) }
func ErrorC(component, message string) { emit(zerolog.ErrorLevel, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.DebugLevel, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.InfoLevel, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.WarnLevel, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.ErrorLevel, component, message, fields)
}
