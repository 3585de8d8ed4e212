// Package logger provides structured logging for commit/flush/atom events,
// adapted from the teacher's internal/logger (slog + severity levels +
// lumberjack rotation), renamed from GCS request/object events to
// atom/commit/flush domain events.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogRotateConfig mirrors the mount option group controlling on-disk log
// rotation (spec.md §6 ambient logging config).
type LogRotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

// Config is the subset of cfg.Config this package needs, kept local so
// logger has no import-cycle risk with cfg (cfg itself logs during
// validation).
type Config struct {
	FilePath        string
	Format          string // "text" or "json"
	Severity        string
	LogRotateConfig LogRotateConfig
}

type loggerFactory struct {
	filePath        string
	sysWriter       io.Writer
	format          string
	level           string
	programLevel    *slog.LevelVar
	logRotateConfig LogRotateConfig
	prefix          string
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       os.Stderr,
		format:          "text",
		level:           SeverityInfo,
		programLevel:    new(slog.LevelVar),
		logRotateConfig: DefaultLogRotateConfig(),
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.programLevel, ""))
)

func init() {
	setLoggingLevel(defaultLoggerFactory.level, defaultLoggerFactory.programLevel)
}

func setLoggingLevel(severity string, programLevel *slog.LevelVar) {
	programLevel.Set(levelForSeverity(severity))
}

func replaceAttr(prefix string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			if len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
			}
		case slog.LevelKey:
			if len(groups) == 0 {
				a.Key = "severity"
				a.Value = slog.StringValue(severityForLevel(slog.Level(a.Value.Any().(slog.Level))))
			}
		case slog.MessageKey:
			if len(groups) == 0 {
				a.Key = "message"
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
		}
		return a
	}
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr(prefix)}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogFormat switches the default logger's output format ("text" or
// "json"; anything else behaves like "text").
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.sysWriter, defaultLoggerFactory.programLevel, defaultLoggerFactory.prefix))
}

// InitLogFile points the default logger at a rotating file instead of
// stderr, per the mount options bound into cfg.LoggingConfig (spec.md §6).
func InitLogFile(cfg Config) error {
	lj := &lumberjack.Logger{
		Filename: cfg.FilePath,
		MaxSize:  cfg.LogRotateConfig.MaxFileSizeMB,
		Compress: cfg.LogRotateConfig.Compress,
	}
	if cfg.LogRotateConfig.BackupFileCount >= 0 {
		lj.MaxBackups = cfg.LogRotateConfig.BackupFileCount
	}

	defaultLoggerFactory.filePath = cfg.FilePath
	defaultLoggerFactory.sysWriter = nil
	defaultLoggerFactory.format = cfg.Format
	defaultLoggerFactory.level = cfg.Severity
	defaultLoggerFactory.logRotateConfig = cfg.LogRotateConfig

	async := NewAsyncLogger(lj, 4096)
	setLoggingLevel(cfg.Severity, defaultLoggerFactory.programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(async, defaultLoggerFactory.programLevel, defaultLoggerFactory.prefix))
	return nil
}

func Tracef(format string, args ...any) { defaultLogger.Log(nil, LevelTrace, fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { defaultLogger.Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { defaultLogger.Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { defaultLogger.Error(fmt.Sprintf(format, args...)) }

// WithAtom returns a derived logger carrying the atom id as a structured
// field, for commit/flush call sites that log several related events.
func WithAtom(atomID uint64) *slog.Logger {
	return defaultLogger.With("atom", atomID)
}
