// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Setup applies level, optional log file and verbosity to the standard
// logger. The returned closer releases the log file, if any.
func Setup(level, logFile string, verbose bool) (io.Closer, error) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		parsed = logrus.DebugLevel
	}
	logrus.SetLevel(parsed)

	if logFile == "" {
		logrus.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}

// ForFile returns an entry tagged with the base name of a file being processed.
func ForFile(component, path string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": component,
		"file":      filepath.Base(path),
	})
}
