// Package logx builds the logrus logger used by the CLI.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"unrat/internal/settings"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New returns a logger configured from cfg. Output goes to stderr unless
// cfg.File is set, in which case it is rotated by lumberjack. The returned
// closer releases the log file and is never nil.
func New(cfg settings.Log, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logx: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		return nil, nil, fmt.Errorf("logx: unsupported format %q", cfg.Format)
	}

	if cfg.File == "" {
		logger.SetOutput(stderr)
		return logger, nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("logx: create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	// Debug sessions also echo to the terminal.
	if level >= logrus.DebugLevel {
		logger.SetOutput(io.MultiWriter(stderr, lj))
	} else {
		logger.SetOutput(lj)
	}
	return logger, lj, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
