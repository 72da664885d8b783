package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetUpLog installs the global zap logger at the given level.
// An empty level leaves the development default (debug).
func SetUpLog(level string) error {
	cfg := zap.NewDevelopmentConfig()
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
