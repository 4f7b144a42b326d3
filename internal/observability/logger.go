package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger emits structured events through log/slog. The CLI installs one when
// observability.logging.format is json so run transcripts can be shipped to
// a log pipeline.
type Logger struct {
	logger *slog.Logger
}

// LogConfig selects the level (debug, info, warn, error), the format
// (json or text) and the sink, which defaults to stderr.
type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

func NewLogger(cfg LogConfig) *Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// With returns a logger that adds args to every event.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
