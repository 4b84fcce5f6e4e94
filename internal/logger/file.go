package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/engine"
)

// FileLogger records execution events to a timestamped per-run log file and
// maintains a latest.log symlink pointing at the most recent run. It is
// thread-safe and implements engine.EventSink.
type FileLogger struct {
	logDir  string
	runLog  *os.File
	runFile string
	mu      sync.Mutex
}

// NewFileLogger creates a FileLogger writing under logDir, creating the
// directory if needed.
func NewFileLogger(logDir string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	f, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	fl := &FileLogger{
		logDir:  logDir,
		runLog:  f,
		runFile: runFile,
	}
	fl.updateLatestSymlink()
	return fl, nil
}

// updateLatestSymlink points latest.log at the current run file. Symlink
// failures are ignored; some filesystems do not support them.
func (fl *FileLogger) updateLatestSymlink() {
	latest := filepath.Join(fl.logDir, "latest.log")
	os.Remove(latest)
	_ = os.Symlink(filepath.Base(fl.runFile), latest)
}

// Publish implements engine.EventSink.
func (fl *FileLogger) Publish(event engine.Event) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(fl.runLog, "[%s] %s\n", timestamp, formatEvent(event))
}

// Path returns the current run log file path.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

// Close flushes and closes the run log.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.runLog == nil {
		return nil
	}
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}
