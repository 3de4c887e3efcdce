package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"executor/internal/config"
)

// New builds the process logger. Every line carries the worker name so that
// several executor processes can share one log sink.
func New(cfg config.LogConfig, worker string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	if encoding != "json" {
		encoding = "console"
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding,
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: cfg.DisableStacktrace,
		Sampling:          nil,
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	if cfg.Sampling {
		zc.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if worker != "" {
		l = l.With(zap.String("worker", worker))
	}
	return l, nil
}
