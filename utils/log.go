package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

var levelColor = map[LogLevel]func(format string, a ...interface{}) string{
	TRACE:    color.New(color.FgHiBlack).SprintfFunc(),
	DEBUG:    color.New(color.FgCyan).SprintfFunc(),
	INFO:     color.New(color.FgGreen).SprintfFunc(),
	WARN:     color.New(color.FgYellow).SprintfFunc(),
	ERROR:    color.New(color.FgRed).SprintfFunc(),
	CRITICAL: color.New(color.FgHiRed, color.Bold).SprintfFunc(),
}

type logSink struct {
	mu       sync.Mutex
	minLevel LogLevel
	file     *os.File
	out      io.Writer
	colored  bool
}

// Logger writes leveled lines to an optional file and an optional writer.
// Loggers derived with With share the sink. A nil *Logger discards.
type Logger struct {
	sink   *logSink
	prefix string
}

func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &logSink{minLevel: minLevel, file: f}
	if alsoStdout {
		s.out = color.Output
		s.colored = true
	}
	return &Logger{sink: s}, nil
}

// NewLogger writes uncolored lines to w.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	return &Logger{sink: &logSink{minLevel: minLevel, out: w}}
}

// NewStdoutLogger writes colored lines to stdout.
func NewStdoutLogger(minLevel LogLevel) *Logger {
	return &Logger{sink: &logSink{minLevel: minLevel, out: color.Output, colored: true}}
}

func NopLogger() *Logger { return nil }

// With returns a logger that tags every line with name.
func (l *Logger) With(name string) *Logger {
	if l == nil {
		return nil
	}
	p := name
	if l.prefix != "" {
		p = l.prefix + "/" + name
	}
	return &Logger{sink: l.sink, prefix: p}
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil {
		return false
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if l == nil {
		return
	}
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.minLevel {
		return
	}

	text := fmt.Sprintf(msg, args...)
	if l.prefix != "" {
		text = "[" + l.prefix + "] " + text
	}
	ts := time.Now().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s [%s] %s\n", ts, level.String(), text)

	if s.file != nil {
		_, _ = s.file.WriteString(line)
		_ = s.file.Sync()
	}
	if s.out != nil {
		if s.colored {
			_, _ = fmt.Fprintf(s.out, "%s [%s] %s\n", ts, levelColor[level]("%s", level.String()), text)
		} else {
			_, _ = io.WriteString(s.out, line)
		}
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
