// Package log provides structured logging to stderr and a rotating file.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text"
	// Dir holds listingsync.log. Empty disables the file.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultConfig returns defaults for the given log directory.
func DefaultConfig(dir string) Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Dir:        dir,
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger writes structured records to stderr and a log file.
type Logger struct {
	slog *slog.Logger
	file io.WriteCloser
}

// New creates a logger. The file is rotated by size.
func New(cfg Config) (*Logger, error) {
	var file io.WriteCloser
	var w io.Writer = os.Stderr

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "listingsync.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = io.MultiWriter(os.Stderr, file)
	}

	return &Logger{
		slog: slog.New(newHandler(w, cfg)),
		file: file,
	}, nil
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Slog returns the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Printf writes a formatted info record.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.slog.Info(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Println writes an info record.
func (l *Logger) Println(args ...interface{}) {
	l.slog.Info(strings.TrimRight(fmt.Sprintln(args...), "\n"))
}

// Errorf writes a formatted error record.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.slog.Error(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Global logger instance
var globalLogger *Logger

// Init initializes the global logger and makes it the slog default.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = logger
	slog.SetDefault(logger.slog)
	return nil
}

// L returns the global structured logger, or slog's default before Init.
func L() *slog.Logger {
	if globalLogger != nil {
		return globalLogger.slog
	}
	return slog.Default()
}

// OrDefault returns l when set, otherwise the global logger.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Printf uses the global logger to print formatted output.
func Printf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Printf(format, args...)
	} else {
		fmt.Printf(format, args...)
	}
}

// Println uses the global logger to print output with newline.
func Println(args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Println(args...)
	} else {
		fmt.Println(args...)
	}
}

// Errorf uses the global logger to print formatted error output.
func Errorf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Errorf(format, args...)
	} else {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Close closes the global logger.
func Close() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

type ctxKey string

const runIDKey ctxKey = "runID"

// NewRunID returns an id used to correlate the records of one sync run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID returns a context carrying a sync run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the sync run id, if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// FromContext returns base with the run_id attribute when ctx carries one.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	base = OrDefault(base)
	if id, ok := RunIDFromContext(ctx); ok {
		return base.With("run_id", id)
	}
	return base
}
