// Package logger provides logging for foreman execution.
//
// The console logger prints leveled, timestamped progress lines and doubles
// as an engine event sink, so plan and task lifecycle events show up in the
// same stream as ordinary log output. Implementations are thread-safe.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/foreman/internal/engine"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs execution progress to a writer with timestamps and
// thread safety. All output is prefixed with [HH:MM:SS] timestamps.
// Color output is enabled automatically when writing to a TTY.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// writer. If writer is nil, messages are silently discarded.
// Valid levels: debug, info, warn, error (case-insensitive); empty or
// invalid levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		// The color library honors NO_COLOR via this flag.
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel lowercases and validates a log level string.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// Tracef logs a trace-level message (most verbose).
func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if the level passes the
// configured filter.
func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05")
	tag := fmt.Sprintf("[%s]", level)
	if cl.colorOutput {
		tag = cl.levelColor(level).Sprint(tag)
	}
	fmt.Fprintf(cl.writer, "[%s] %s %s\n", timestamp, tag, message)
}

func (cl *ConsoleLogger) levelColor(level string) *color.Color {
	switch level {
	case "TRACE", "DEBUG":
		return color.New(color.FgHiBlack)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

// Publish implements engine.EventSink, rendering lifecycle events as log
// lines. Failures log at error level, pauses at warn, the rest at info.
func (cl *ConsoleLogger) Publish(event engine.Event) {
	msg := formatEvent(event)
	switch event.Type {
	case engine.EventPlanFailed, engine.EventPhaseFailed, engine.EventTaskFailed:
		cl.Errorf("%s", msg)
	case engine.EventPlanPaused:
		cl.Warnf("%s", msg)
	case engine.EventTaskStarted, engine.EventTaskSkipped:
		cl.Debugf("%s", msg)
	default:
		cl.Infof("%s", msg)
	}
}

// formatEvent renders an event as "type plan=.. phase=.. task=..: message",
// omitting empty fields.
func formatEvent(event engine.Event) string {
	var sb strings.Builder
	sb.WriteString(string(event.Type))
	if event.PlanID != "" {
		fmt.Fprintf(&sb, " plan=%s", event.PlanID)
	}
	if event.PhaseID != "" {
		fmt.Fprintf(&sb, " phase=%s", event.PhaseID)
	}
	if event.TaskID != "" {
		fmt.Fprintf(&sb, " task=%s", event.TaskID)
	}
	if event.Message != "" {
		fmt.Fprintf(&sb, ": %s", event.Message)
	}
	return sb.String()
}
