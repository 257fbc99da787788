package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level        string `json:"level" yaml:"level"`
	Format       string `json:"format" yaml:"format"`
	FileLocation string `json:"file_location" yaml:"file_location"`
	MaxSize      int    `json:"max_size" yaml:"max_size"`
	MaxBackups   int    `json:"max_backups" yaml:"max_backups"`
	MaxAge       int    `json:"max_age" yaml:"max_age"`
	Compress     bool   `json:"compress" yaml:"compress"`
	Console      bool   `json:"console" yaml:"console"`
}

// NewLogger builds a logrus logger writing to stdout and, when a file
// location is configured, a size-rotated log file.
func NewLogger(config LogConfig, service, version string) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(config.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	var writers []io.Writer
	if config.FileLocation != "" {
		if err := os.MkdirAll(filepath.Dir(config.FileLocation), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FileLocation,
			MaxSize:    max(1, config.MaxSize),
			MaxBackups: max(0, config.MaxBackups),
			MaxAge:     max(0, config.MaxAge),
			Compress:   config.Compress,
		})
	}
	if config.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))

	l.AddHook(&serviceHook{service: service, version: version})
	return l, nil
}

type serviceHook struct {
	service string
	version string
}

func (h *serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.service
	entry.Data["version"] = h.version
	return nil
}

// EnsureDir creates a directory path if it does not exist yet.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
