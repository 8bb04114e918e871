// Package logging wires ectologger to a zap core so every service package can
// depend on the ectologger interface while output stays structured.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the underlying zap logger.
type Config struct {
	AppName string
	Level   string
	Pretty  bool
}

// New builds an ectologger backed by zap. The returned func flushes buffered
// log entries and should run on shutdown.
func New(cfg Config) (ectologger.Logger, func() error) {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	var zapCfg zap.Config
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		zl = zap.NewNop()
	}
	zl = zl.With(zap.String("app", cfg.AppName))

	return zapadapter.NewZapEctoLogger(zl, nil), zl.Sync
}
