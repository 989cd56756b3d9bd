// Package applog builds the run logger: leveled key/value logging to stderr
// and, when a log file is configured, to a size-rotated file.
package applog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log rotation settings.
const (
	logMaxSize   = 100 // MB.
	logMaxBackup = 5
	logMaxAge    = 28 // Days.
	logSuppress  = false
)

// ParseLevel maps a level name to a logging verbosity.
func ParseLevel(s string) (int8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logging.Debug, nil
	case "", "info":
		return logging.Info, nil
	case "warning", "warn":
		return logging.Warning, nil
	case "error":
		return logging.Error, nil
	case "fatal":
		return logging.Fatal, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a logger writing to stderr and, if path is set, to a rotated
// log file. The returned closer releases the file.
func New(level, path string) (logging.Logger, io.Closer, error) {
	verbosity, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return logging.New(verbosity, os.Stderr, logSuppress), nopCloser{}, nil
	}

	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	return logging.New(verbosity, io.MultiWriter(os.Stderr, fileLog), logSuppress), fileLog, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
