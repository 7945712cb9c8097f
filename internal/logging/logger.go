package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logging configuration
type Config struct {
	Level      string
	Format     string
	Output     string
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New creates a configured logrus logger. Components derive their own
// entries from it with WithField("component", ...).
func New(cfg *Config) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	if err := setOutput(logger, cfg); err != nil {
		return nil, err
	}

	return logger, nil
}

// setOutput sets the log output based on configuration
func setOutput(logger *logrus.Logger, cfg *Config) error {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		logger.SetOutput(os.Stderr)
	case "file":
		dir := cfg.LogDir
		if dir == "" {
			dir = "logs"
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		writer := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "papertrade.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}

		// Mirror to stdout when debugging so local runs stay readable
		if cfg.Level == "debug" {
			logger.SetOutput(io.MultiWriter(writer, os.Stdout))
		} else {
			logger.SetOutput(writer)
		}
	default:
		logger.SetOutput(os.Stdout)
	}

	return nil
}
