package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level   string
	Env     string
	Service string
}

// NewLogger builds a JSON logger for prod and a console one otherwise.
// Every entry carries the service name.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Env == "prod" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "ts"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	if cfg.Service != "" {
		zapCfg.InitialFields = map[string]any{"service": cfg.Service}
	}

	return zapCfg.Build()
}

func (c *Config) LoggerConfig(service string) LoggerConfig {
	return LoggerConfig{
		Level:   c.LogLevel,
		Env:     c.Env,
		Service: service,
	}
}
