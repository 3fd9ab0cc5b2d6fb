// Package logging provides config-driven, categorized file logging.
// Each category writes to its own file under the configured directory.
// When debug mode is off the package is a silent no-op, which keeps the
// stdio transport clean: stdout belongs to the protocol, and nothing here
// ever writes to it.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot    Category = "boot"    // startup, shutdown, config
	CategorySession Category = "session" // session lifecycle, eviction
	CategoryKernel  Category = "kernel"  // namespace store operations
	CategorySandbox Category = "sandbox" // script execution
	CategoryHandles Category = "handles" // handle registry
	CategoryServer  Category = "server"  // tool dispatch
)

// Config controls the logging subsystem.
type Config struct {
	// DebugMode gates all file logging. False means no files are opened
	// and every logger is a no-op.
	DebugMode bool

	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Directory is where per-category log files are written.
	Directory string

	// Categories optionally disables individual categories. Absent
	// categories default to enabled.
	Categories map[string]bool
}

var (
	mu      sync.RWMutex
	cfg     Config
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*zap.SugaredLogger)
	files   []*os.File
	nop     = zap.NewNop().Sugar()
)

// Initialize sets up the logging directory and creates the boot logger.
// Call once at startup, before any Get.
func Initialize(c Config) error {
	mu.Lock()
	cfg = c
	level.SetLevel(parseLevel(c.Level))
	mu.Unlock()

	if !c.DebugMode {
		return nil
	}
	if c.Directory == "" {
		return fmt.Errorf("log directory required when debug mode is on")
	}
	if err := os.MkdirAll(c.Directory, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	Boot("logging initialized: dir=%s level=%s", c.Directory, c.Level)
	return nil
}

// SetLevel changes the minimum level at runtime, for config hot reload.
func SetLevel(lvl string) {
	level.SetLevel(parseLevel(lvl))
}

func parseLevel(lvl string) zapcore.Level {
	switch lvl {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func enabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !cfg.DebugMode || cfg.Directory == "" {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	on, found := cfg.Categories[string(category)]
	if !found {
		return true
	}
	return on
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger, so call sites never nil-check.
func Get(category Category) *zap.SugaredLogger {
	if !enabled(category) {
		return nop
	}

	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(cfg.Directory, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return nop
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(file), level)

	l = zap.New(core).Named(string(category)).Sugar()
	loggers[category] = l
	files = append(files, file)
	return l
}

// CloseAll flushes and closes every open log file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()

	for _, l := range loggers {
		_ = l.Sync()
	}
	for _, f := range files {
		_ = f.Close()
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	files = nil
}

// Convenience functions. No-ops when the category is disabled.

func Boot(format string, args ...any)         { Get(CategoryBoot).Infof(format, args...) }
func BootDebug(format string, args ...any)    { Get(CategoryBoot).Debugf(format, args...) }
func BootError(format string, args ...any)    { Get(CategoryBoot).Errorf(format, args...) }
func Session(format string, args ...any)      { Get(CategorySession).Infof(format, args...) }
func SessionDebug(format string, args ...any) { Get(CategorySession).Debugf(format, args...) }
func Kernel(format string, args ...any)       { Get(CategoryKernel).Infof(format, args...) }
func KernelDebug(format string, args ...any)  { Get(CategoryKernel).Debugf(format, args...) }
func Sandbox(format string, args ...any)      { Get(CategorySandbox).Infof(format, args...) }
func SandboxDebug(format string, args ...any) { Get(CategorySandbox).Debugf(format, args...) }
func Handles(format string, args ...any)      { Get(CategoryHandles).Infof(format, args...) }
func HandlesDebug(format string, args ...any) { Get(CategoryHandles).Debugf(format, args...) }
func Server(format string, args ...any)       { Get(CategoryServer).Infof(format, args...) }
func ServerDebug(format string, args ...any)  { Get(CategoryServer).Debugf(format, args...) }
func ServerError(format string, args ...any)  { Get(CategoryServer).Errorf(format, args...) }
