package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Environment variables configuring the log file path and debug output.
const (
	envLogPath = "CACHE_REPLAY_LOG"
	envDebug   = "CACHE_REPLAY_DEBUG"
)

var (
	mu      sync.Mutex
	std     *log.Logger
	logFile *os.File
	debug   bool
)

// InitFromEnv initializes the logger using CACHE_REPLAY_LOG or a default path.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "cache-replay.log")
		} else {
			path = "./cache-replay.log"
		}
	}
	if v := os.Getenv(envDebug); v != "" && v != "0" {
		SetDebug(true)
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if std != nil {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return nil
}

// SetOutput redirects logging to w, closing any open log file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	std = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// SetDebug toggles Debugf output.
func SetDebug(on bool) {
	mu.Lock()
	debug = on
	mu.Unlock()
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		std = nil
		return err
	}
	return nil
}

// Infof logs informational messages.
func Infof(format string, args ...any) { write("INFO", format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { write("WARN", format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { write("ERROR", format, args...) }

// Debugf logs only when debug output is enabled.
func Debugf(format string, args ...any) {
	mu.Lock()
	on := debug
	mu.Unlock()
	if on {
		write("DEBUG", format, args...)
	}
}

func write(level string, format string, args ...any) {
	mu.Lock()
	l := std
	mu.Unlock()
	if l == nil {
		// Nothing configured: discard rather than guess a file path.
		return
	}
	l.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
