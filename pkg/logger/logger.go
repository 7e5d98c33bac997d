// Package logger provides component-tagged logging for the whole bot.
// Every call site names its component ("onebot", "router", "feature.dice", ...)
// so log lines can be filtered per subsystem.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the global logger output.
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Stdout     bool
}

var (
	mu  sync.RWMutex
	log = defaultLogger()
)

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Init reconfigures the global logger. Safe to call more than once;
// callers before Init get the stdout default.
func Init(cfg Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	var writers []io.Writer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Stdout || cfg.File == "" {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))

	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   cfg.File != "" && !cfg.Stdout,
	})

	mu.Lock()
	log = l
	mu.Unlock()
	return nil
}

func entry(component string) *logrus.Entry {
	mu.RLock()
	l := log
	mu.RUnlock()
	return l.WithField("component", component)
}

func withFields(component string, fields map[string]interface{}) *logrus.Entry {
	return entry(component).WithFields(logrus.Fields(fields))
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { entry(component).Debug(msg) }

// DebugCF logs a debug message with extra fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Debug(msg)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { entry(component).Info(msg) }

// InfoCF logs an info message with extra fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Info(msg)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { entry(component).Warn(msg) }

// WarnCF logs a warning with extra fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Warn(msg)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { entry(component).Error(msg) }

// ErrorCF logs an error with extra fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	withFields(component, fields).Error(msg)
}
