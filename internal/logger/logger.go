// Package logger builds the process-wide zap logger.
//
// Events go to stderr (console or JSON encoding). When a file is
// configured, the same events are also written as JSON to a rotating file
// managed by lumberjack; no external log-rotate job is required.
//
// Usage
//
//	log, err := logger.New(logger.Config{Level: "info", Format: "console"})
//	if err != nil { … }
//	defer log.Sync()
//	log.Sugar().Infow("cache online", "max_size", 1024)
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, stderr encoding and the optional file sink.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // console | json
	File   string // empty = no file sink
}

// New returns a logger configured by cfg and installs it as the global
// logger via zap.ReplaceGlobals.
func New(cfg Config) (*zap.Logger, error) {
	return build(cfg, os.Stderr)
}

func build(cfg Config, stderr io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		level = l
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
		EncodeName:   zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(stderr), level)}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		sink := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(sink),
			level,
		))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(z)
	return z, nil
}
