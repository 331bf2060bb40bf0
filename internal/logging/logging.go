package logging

import (
	"io"
	"os"
	"strings"

	"governance-sync/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures the global logrus logger: timestamped text output to stdout
// and, when a file is configured, a rotated copy on disk. The returned closer
// flushes the file writer and may be nil.
func Init(cfg config.LogConfig) io.Closer {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(ParseLevel(cfg.Level))

	if strings.TrimSpace(cfg.File) == "" {
		logrus.SetOutput(os.Stdout)
		return nil
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, rotating))
	return rotating
}

// ParseLevel maps a config string onto a logrus level, defaulting to info.
func ParseLevel(raw string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
