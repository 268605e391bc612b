package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "sadb.log"

// FileConfig enables a rotated JSON log file next to stderr output.
type FileConfig struct {
	Directory  string `yaml:"directory,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

type Config struct {
	Level string     `yaml:"level,omitempty"`
	File  FileConfig `yaml:"file,omitempty"`
}

func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := zapcore.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if c.File.MaxSizeMB < 0 || c.File.MaxAgeDays < 0 || c.File.MaxBackups < 0 {
		return fmt.Errorf("log.file rotation limits must be >= 0")
	}
	return nil
}

// Init installs the global logger. Components take zap.S().Named(...).
func Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		level, _ = zapcore.ParseLevel(cfg.Level)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return err
	}

	if cfg.File.Directory != "" {
		if err := os.MkdirAll(cfg.File.Directory, 0o700); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Directory, logFileName),
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDays,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zc.EncoderConfig),
			zapcore.AddSync(rotator),
			zc.Level,
		)
		l = l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(l)
	return nil
}
