/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed key/value pair of a log entry.
type Field = logf.Field

// CloseFunc flushes pending entries and stops the asynchronous writer.
type CloseFunc logf.ChannelWriterCloseFunc

// LogFunc logs a message at the level it's bound to.
// nolint: revive
type LogFunc = logf.LogFunc

// Field constructors.
var (
	Error      = logf.Error
	NamedError = logf.NamedError
	String     = logf.String
	Strings    = logf.Strings
	Int        = logf.Int
	Int64      = logf.Int64
	Uint64     = logf.Uint64
	Float64    = logf.Float64
	Duration   = logf.Duration
	Bool       = logf.Bool
	Time       = logf.Time
	Any        = logf.Any
)

// DurationIn returns the "duration" field with val expressed in whole units (e.g. milliseconds).
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", int64(val/unit))
}

// FieldLogger is a structured logger.
type FieldLogger interface {
	With(...Field) FieldLogger

	Debug(string, ...Field)
	Info(string, ...Field)
	Warn(string, ...Field)
	Error(string, ...Field)

	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})

	AtLevel(Level, func(LogFunc))
	WithLevel(level Level) FieldLogger
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// NewLogger creates a logger writing entries asynchronously to the configured output.
// Every entry carries the "pid" field. CloseFunc must be called before exit, otherwise the last entries are lost.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	writer, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newOutputAppender(cfg),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(logfLevel(cfg.Level), writer).With(Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // the adapter's frame
	}
	return &LogfAdapter{Logger: logger}, CloseFunc(closeWriter)
}

// With returns a logger adding fs to every entry.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.With(fs...)}
}

// Debug logs at the debug level.
func (l *LogfAdapter) Debug(msg string, fs ...Field) { l.Logger.Debug(msg, fs...) }

// Info logs at the info level.
func (l *LogfAdapter) Info(msg string, fs ...Field) { l.Logger.Info(msg, fs...) }

// Warn logs at the warn level.
func (l *LogfAdapter) Warn(msg string, fs ...Field) { l.Logger.Warn(msg, fs...) }

// Error logs at the error level.
func (l *LogfAdapter) Error(msg string, fs ...Field) { l.Logger.Error(msg, fs...) }

// Debugf logs a formatted message at the debug level.
func (l *LogfAdapter) Debugf(format string, args ...interface{}) { l.printf(LevelDebug, format, args) }

// Infof logs a formatted message at the info level.
func (l *LogfAdapter) Infof(format string, args ...interface{}) { l.printf(LevelInfo, format, args) }

// Warnf logs a formatted message at the warn level.
func (l *LogfAdapter) Warnf(format string, args ...interface{}) { l.printf(LevelWarn, format, args) }

// Errorf logs a formatted message at the error level.
func (l *LogfAdapter) Errorf(format string, args ...interface{}) { l.printf(LevelError, format, args) }

// printf formats the message only if the level is enabled.
func (l *LogfAdapter) printf(level Level, format string, args []interface{}) {
	l.AtLevel(level, func(logFunc LogFunc) { logFunc(fmt.Sprintf(format, args...)) })
}

// AtLevel calls fn with a LogFunc bound to the level, if the level is enabled.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(logfLevel(level), fn)
}

// WithLevel returns a logger that also drops entries below the level. It can only raise the level.
func (l *LogfAdapter) WithLevel(level Level) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.WithLevel(logfLevel(level))}
}

var logfLevels = map[Level]logf.Level{
	LevelError: logf.LevelError,
	LevelWarn:  logf.LevelWarn,
	LevelInfo:  logf.LevelInfo,
	LevelDebug: logf.LevelDebug,
}

func logfLevel(level Level) logf.Level {
	if l, ok := logfLevels[level]; ok {
		return l
	}
	return logf.LevelInfo
}

func newOutputAppender(cfg *Config) logf.Appender {
	var w io.Writer = os.Stdout
	switch cfg.Output {
	case OutputStderr:
		w = os.Stderr
	case OutputFile:
		w = &lumberjack.Logger{
			Filename:   resolvePlaceholders(cfg.File.Path),
			MaxSize:    int(cfg.File.Rotation.MaxSize >> 20), // megabytes
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		}
	}
	return newAppender(cfg, w)
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var encodeError logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		encodeError = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}
	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: encodeError,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  encodeError,
	}))
}

// resolvePlaceholders expands {{pid}} and {{starttime}} (YYYYMMDDhhmm) in the log file path.
func resolvePlaceholders(path string) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", time.Now().Format("200601021504"),
	).Replace(path)
}
