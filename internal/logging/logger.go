// Package logging provides config-driven categorized file-based logging.
// Logs are written to <dir>/logs/ with separate files per category.
// Logging is a silent no-op until Initialize is called with debug enabled,
// so library users pay nothing for it.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"        // startup, corpus loading
	CategoryParams      Category = "params"      // parameter registry
	CategoryConstraints Category = "constraints" // constraint store, overrides
	CategoryObservables Category = "observables" // observable registry
	CategoryPropagate   Category = "propagate"   // Monte Carlo / linear propagation
	CategoryLikelihood  Category = "likelihood"  // chi-square, log-likelihood
	CategoryStore       Category = "store"       // ensemble cache
	CategoryCLI         Category = "cli"         // command surface
)

// Settings controls which categories log and at which level. It is
// normally filled from the config file by the caller.
type Settings struct {
	Debug      bool
	Level      string
	Categories map[string]bool
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	settings  Settings
	setMu     sync.RWMutex
	logLevel  int
)

// Initialize sets up the logging directory and applies the settings.
// With Debug false this is a no-op and all loggers stay silent.
func Initialize(dir string, s Settings) error {
	setMu.Lock()
	settings = s
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	setMu.Unlock()

	if !s.Debug {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("logging: directory required when debug is enabled")
	}
	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("logging: create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("logging initialized, dir=%s level=%s", logsDir, s.Level)
	return nil
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	setMu.RLock()
	defer setMu.RUnlock()
	if !settings.Debug {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. It returns a
// no-op logger when the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer measures an operation's duration for the performance trail.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// Convenience helpers: quick logging without getting a logger first.
// These are no-ops if the category is disabled.

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func Constraints(format string, args ...interface{}) {
	Get(CategoryConstraints).Info(format, args...)
}

func Propagate(format string, args ...interface{}) {
	Get(CategoryPropagate).Info(format, args...)
}

func PropagateDebug(format string, args ...interface{}) {
	Get(CategoryPropagate).Debug(format, args...)
}

func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}
