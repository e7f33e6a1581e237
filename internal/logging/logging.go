// Package logging wires up the process-wide structured logger. It keeps the
// teacher's log-to-file-and-stdout convention (rotateLogFile + io.MultiWriter)
// but promotes it to logrus so every component gets structured, leveled
// fields instead of the teacher's plain log.Printf lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// New creates the application logger, writing to both stdout and logPath.
// Mirrors the teacher's main() log setup: ensure the directory exists,
// rotate the file once it crosses maxBytes, then open it in append mode.
func New(logPath string, devMode bool) (*logrus.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rotateLogFile(logPath, 10*1024*1024)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if devMode {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger, nil
}

// rotateLogFile renames the log file to .old if it exceeds maxBytes.
// Keeps one backup only. Errors are non-fatal (logged to stderr) since
// logging setup can't yet log to itself.
func rotateLogFile(path string, maxBytes int64) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxBytes {
		return
	}
	oldPath := path + ".old"
	os.Remove(oldPath)
	if err := os.Rename(path, oldPath); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
}
