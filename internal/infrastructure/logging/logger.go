package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
)

// Config selects how SDK diagnostics are written. Diagnostics stay local and
// are never shipped through the remote pipeline.
type Config struct {
	Level       zapcore.Level
	Development bool
	OutputPaths []string
}

// FromConfig builds a Config from the logging section of the SDK
// configuration. verbose forces debug level and the console encoder.
func FromConfig(c config.LogConfig, verbose bool) (Config, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Level:       level,
		Development: c.Development,
		OutputPaths: []string{"stderr"},
	}
	if verbose {
		cfg.Level = zapcore.DebugLevel
		cfg.Development = true
	}
	return cfg, nil
}

// New builds the diagnostics logger. Production output is JSON with
// "timestamp" and "message" keys; development output is colored console text.
func New(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Sampling = nil
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.MessageKey = "message"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.Level)
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("loggy"), nil
}

// ParseLevel converts a level name to zapcore.Level. An empty name is info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(level)
}
