// Package logger defines the leveled logger every impactboard component writes to,
// with log/slog and zerolog backends.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the logging surface used across the module.
// args are alternating key/value pairs, as in log/slog.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// New returns a Logger backed by the given slog.Handler.
func New(h slog.Handler) Logger {
	return &slogLogger{logger: slog.New(h)}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NewHandler builds a slog.Handler for the named format ("json" or "text") at the given level.
// Unknown formats fall back to text.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels; anything else is info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Enabled reports whether l would emit records at level. Only the slog backend can answer;
// other backends report true.
func Enabled(l Logger, level slog.Level) bool {
	if sl, ok := l.(*slogLogger); ok {
		return sl.logger.Enabled(context.Background(), level)
	}
	return true
}

// LogBuild assembles a zerolog-backed Logger writing to a file, a buffer, or stdout.
type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// LogData is the result of LogBuild.Make. Close the LogFile when it is not nil.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) WithLevel(level slog.Level) *LogBuild {
	switch {
	case level <= slog.LevelDebug:
		build.level = zerolog.DebugLevel
	case level <= slog.LevelInfo:
		build.level = zerolog.InfoLevel
	case level <= slog.LevelWarn:
		build.level = zerolog.WarnLevel
	default:
		build.level = zerolog.ErrorLevel
	}
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stdout
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

// FromZerolog adapts a zerolog.Logger to Logger.
func FromZerolog(z zerolog.Logger) Logger {
	return &zerologLogger{logger: z}
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (l *zerologLogger) Error(msg string, args ...any) { l.logger.Error().Fields(args).Msg(msg) }
func (l *zerologLogger) Warn(msg string, args ...any)  { l.logger.Warn().Fields(args).Msg(msg) }
func (l *zerologLogger) Info(msg string, args ...any)  { l.logger.Info().Fields(args).Msg(msg) }
func (l *zerologLogger) Debug(msg string, args ...any) { l.logger.Debug().Fields(args).Msg(msg) }
