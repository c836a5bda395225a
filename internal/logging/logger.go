// Package logging provides categorized logging for anchorkeeper.
// Every category is a named child of one zap logger, so a single Initialize call
// decides level, encoding and destination for the whole process.
// Until Initialize (or SetBase) runs, all loggers are no-ops.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config resolution
	CategoryWatcher Category = "watcher" // Filesystem events, debounce
	CategoryKeeper  Category = "keeper"  // Reconciliation passes
	CategoryStore   Category = "store"   // Baseline persistence
	CategoryCodec   Category = "codec"   // Save file decode/encode
	CategoryBackup  Category = "backup"  // Save file snapshots
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	File   string // optional extra output path
}

// Logger is a category logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	base    = zap.NewNop()
	baseMu  sync.RWMutex
	loggers = make(map[Category]*Logger)
	mu      sync.RWMutex
)

// Initialize builds the process logger from cfg and installs it.
func Initialize(cfg Config) error {
	zcfg := zap.NewProductionConfig()
	zcfg.Sampling = nil
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	switch cfg.Format {
	case "", "text", "console":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		zcfg.Encoding = "json"
	default:
		return fmt.Errorf("invalid log format %q (valid: json, text)", cfg.Format)
	}

	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetBase(l)
	return nil
}

// SetBase installs l as the root logger and drops cached category loggers.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	base = l
	baseMu.Unlock()

	mu.Lock()
	loggers = make(map[Category]*Logger)
	mu.Unlock()
}

// Base returns the root zap logger.
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	_ = Base().Sync()
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    Base().Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// WatcherDebug logs debug to the watcher category
func WatcherDebug(format string, args ...interface{}) {
	Get(CategoryWatcher).Debug(format, args...)
}

// Keeper logs to the keeper category
func Keeper(format string, args ...interface{}) {
	Get(CategoryKeeper).Info(format, args...)
}

// KeeperDebug logs debug to the keeper category
func KeeperDebug(format string, args ...interface{}) {
	Get(CategoryKeeper).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// CodecDebug logs debug to the codec category
func CodecDebug(format string, args ...interface{}) {
	Get(CategoryCodec).Debug(format, args...)
}

// Backup logs to the backup category
func Backup(format string, args ...interface{}) {
	Get(CategoryBackup).Info(format, args...)
}

// =============================================================================
// TIMING
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
