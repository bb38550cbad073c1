package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of a log message.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps debug/info/warn/error to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	minLevel atomic.Int32
	sinkMu   sync.Mutex
	sink     io.Writer = os.Stderr
)

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel sets the process-wide minimum level for component loggers.
func SetLevel(level Level) {
	minLevel.Store(int32(level))
}

// SetOutput redirects component loggers. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	sink = w
}

// ComponentLogger writes "<ts> [LEVEL] [component] file:line - msg" lines.
type ComponentLogger struct {
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &ComponentLogger{component: component}
}

func (l *ComponentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *ComponentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *ComponentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *ComponentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *ComponentLogger) log(level Level, format string, args ...any) {
	if int32(level) < minLevel.Load() {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
	}

	component := l.component
	if component == "" {
		component = "opsbot"
	}

	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line,
		fmt.Sprintf(format, args...))

	sinkMu.Lock()
	defer sinkMu.Unlock()
	_, _ = io.WriteString(sink, sanitizeLogLine(logLine))
}

var (
	bearerTokenPattern      = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	standaloneSecretPattern = regexp.MustCompile(`(sk-[A-Za-z0-9]{16,}|AIza[A-Za-z0-9\-_]{20,})`)
)

const redactedPlaceholder = "[REDACTED]"

func sanitizeLogLine(line string) string {
	line = bearerTokenPattern.ReplaceAllString(line, "${1}"+redactedPlaceholder)
	return standaloneSecretPattern.ReplaceAllString(line, redactedPlaceholder)
}
