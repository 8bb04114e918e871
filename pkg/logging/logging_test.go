package logging

import (
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "production defaults", cfg: Config{AppName: "clover-api", Level: "info"}},
		{name: "pretty development", cfg: Config{AppName: "clover-api", Level: "debug", Pretty: true}},
		{name: "unknown level falls back to info", cfg: Config{AppName: "clover-api", Level: "verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, flush := New(tt.cfg)
			require.NotNil(t, logger)
			require.NotNil(t, flush)

			logger.WithFields(map[string]any{"user_id": "u-1"}).Info("request")
			logger.WithError(errors.New("boom")).Error("failed")
		})
	}
}

func TestZapSinkRoutesLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zapadapter.NewZapEctoLogger(zap.New(core), nil)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.WithError(errors.New("boom")).Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)

	fields := entries[3].ContextMap()
	assert.Equal(t, "boom", fields["error"])
}

func TestZapSinkCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var logger ectologger.Logger = zapadapter.NewZapEctoLogger(zap.New(core), nil)

	logger.WithFields(map[string]any{
		"user_id":   "u-1",
		"device_id": "d-1",
	}).Info("reconciled")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "u-1", fields["user_id"])
	assert.Equal(t, "d-1", fields["device_id"])
}
