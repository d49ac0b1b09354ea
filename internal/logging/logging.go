package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps the CLI level names to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown logging level %q", s)
}

// Logger writes to a console sink at a configured level and, optionally, to a
// log file that always receives everything down to debug. It is passed
// explicitly to the components that log, so there is no process-wide handler
// registration to duplicate on re-initialization.
type Logger struct {
	mu           sync.Mutex
	console      *log.Logger
	consoleLevel Level
	file         *log.Logger
	f            *os.File
}

// New creates a Logger printing to stderr at consoleLevel. If filePath is
// non-empty the file is created (truncated) and receives all levels.
func New(consoleLevel Level, filePath string) (*Logger, error) {
	l := &Logger{
		console:      log.New(os.Stderr, "", log.LstdFlags),
		consoleLevel: consoleLevel,
	}

	if filePath != "" {
		f, err := os.Create(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.f = f
		l.file = log.New(f, "", log.LstdFlags)
	}

	return l, nil
}

// Discard returns a logger that drops everything. Used in tests and as a
// default when callers pass nil.
func Discard() *Logger {
	return &Logger{
		console:      log.New(io.Discard, "", 0),
		consoleLevel: LevelError + 1,
	}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		err := l.f.Close()
		l.f = nil
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) logf(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if level >= l.consoleLevel {
		l.console.Print(msg)
	}
	if l.file != nil {
		l.file.Printf("%s: %s", level, msg)
	}
}

func (l *Logger) Debugf(format string, args ...any)   { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warningf(format string, args ...any) { l.logf(LevelWarning, format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.logf(LevelError, format, args...) }
