// Package logging wraps logrus with component-tagged, rotation-aware
// output. Core components take a *Logger at construction rather than
// reaching for a package-level global; Default exists only for cmd/
// wiring.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Component tags every log line with the subsystem that emitted it as a
// structured field, instead of a bracketed message prefix like "[queue] ...".
type Component string

const (
	ComponentQueue        Component = "queue"
	ComponentStateMachine Component = "statemachine"
	ComponentRetry        Component = "retry"
	ComponentSearch       Component = "search"
	ComponentDownload     Component = "download"
	ComponentCatalog      Component = "catalog"
	ComponentConvert      Component = "convert"
	ComponentImport       Component = "import"
	ComponentOrchestrator Component = "orchestrator"
	ComponentEvents       Component = "events"
	ComponentMain         Component = "main"
)

// Config controls where and how log lines are written.
type Config struct {
	Level      string // logrus level name; defaults to "info"
	ToStdout   bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger wraps *logrus.Logger bound to a Component.
type Logger struct {
	*logrus.Logger
	component Component
}

var defaultLogger *Logger

// New constructs a Logger from Config, bound to component.
func New(cfg Config, component Component) (*Logger, error) {
	base := logrus.New()

	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", levelName, err)
	}
	base.SetLevel(level)

	var writers []io.Writer
	if cfg.ToStdout {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		dir := filepath.Dir(cfg.File)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("logging: create log directory %q: %w", dir, err)
			}
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	base.SetOutput(io.MultiWriter(writers...))

	if cfg.File != "" {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05", ForceColors: true})
	}

	return &Logger{Logger: base, component: component}, nil
}

// Default returns a stdout-only logger bound to ComponentMain, creating
// one on first use. Intended for cmd/ wiring before Config is loaded.
func Default() *Logger {
	if defaultLogger == nil {
		l, _ := New(Config{ToStdout: true, Level: "info"}, ComponentMain)
		defaultLogger = l
	}
	return defaultLogger
}

// WithComponent returns a copy of l scoped to a different component,
// sharing the same underlying *logrus.Logger and writers.
func (l *Logger) WithComponent(component Component) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// WithField adds a field to the entry, always including component.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, key: value})
}

// WithFields adds multiple fields to the entry, always including component.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = make(logrus.Fields)
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError adds an error field to the entry, always including component.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component, "error": err})
}

func (l *Logger) Debug(args ...interface{}) { l.WithFields(nil).Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.WithFields(nil).Debugf(format, args...)
}
func (l *Logger) Info(args ...interface{}) { l.WithFields(nil).Info(args...) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.WithFields(nil).Infof(format, args...)
}
func (l *Logger) Warn(args ...interface{}) { l.WithFields(nil).Warn(args...) }
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.WithFields(nil).Warnf(format, args...)
}
func (l *Logger) Error(args ...interface{}) { l.WithFields(nil).Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.WithFields(nil).Errorf(format, args...)
}
