package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

// FileRotationConfig contains file logging rotation settings
type FileRotationConfig struct {
	Path       string // Log file path (required)
	MaxSizeMB  int    // Megabytes before rotation (default: 100)
	MaxBackups int    // Rotated files to keep (default: 3)
	MaxAge     int    // Days to keep rotated files (default: 28)
	Compress   bool   // Gzip rotated files
}

// NewLoggerWithFile creates a logger that writes to stdout and, when
// fileConfig names a path, to a rotating log file as well.
// Colors are disabled whenever a file is written so it stays free of ANSI codes.
func NewLoggerWithFile(module string, level Level, useColors bool, fileConfig *FileRotationConfig) (*SimpleLogger, error) {
	if fileConfig == nil || fileConfig.Path == "" {
		return NewSimpleLogger(module, level, useColors), nil
	}

	rotator := &lumberjack.Logger{
		Filename:   fileConfig.Path,
		MaxSize:    orDefault(fileConfig.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: orDefault(fileConfig.MaxBackups, defaultMaxBackups),
		MaxAge:     orDefault(fileConfig.MaxAge, defaultMaxAgeDays),
		Compress:   fileConfig.Compress,
	}

	return NewSimpleLoggerWithWriter(module, level, false, io.MultiWriter(os.Stdout, rotator)), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
