// Package logging builds the node's base zap.Logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the base logger for the process: a colored development
// encoder when RDNODE_ENV=dev, otherwise the production JSON encoder.
// Callers derive per-component loggers from it via log.Named(...).
func New() *zap.Logger {
	if os.Getenv("RDNODE_ENV") == "dev" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = ""
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
		return zap.Must(cfg.Build())
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return zap.Must(cfg.Build())
}
