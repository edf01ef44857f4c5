// Package logging constructs the process-wide structured logger. It is built
// once in the composition root and passed explicitly to every component that
// needs it -- there is no package-level global logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger suited to a long-running foreground assistant
// process: human-readable console output, level gated by verbose.
func New(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = !verbose
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// Code annotates a log entry with the stable error code from the taxonomy
// in errkind, per the "stable code and one line of human summary" rule.
func Code(code string) zap.Field {
	return zap.String("code", code)
}
