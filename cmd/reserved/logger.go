package main

import (
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"MemberReserve/internal/config"
)

func newLogger(c config.Log) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	if c.Mode == "dev" {
		logCfg = zap.NewDevelopmentConfig()
		logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	switch c.Level {
	case "debug":
		logCfg.Level.SetLevel(zapcore.DebugLevel)
	case "warn":
		logCfg.Level.SetLevel(zapcore.WarnLevel)
	case "error":
		logCfg.Level.SetLevel(zapcore.ErrorLevel)
	default:
		logCfg.Level.SetLevel(zapcore.InfoLevel)
	}

	if c.SentryDSN == "" {
		return logCfg.Build()
	}
	// Only warnings and errors are forwarded.
	sentryOpts := zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.RegisterHooks(core, func(entry zapcore.Entry) error {
			if entry.Level < zapcore.WarnLevel {
				return nil
			}
			e := sentry.NewEvent()
			e.Message = entry.Message
			e.Logger = entry.LoggerName
			switch entry.Level {
			case zap.WarnLevel:
				e.Level = sentry.LevelWarning
			case zap.ErrorLevel:
				e.Level = sentry.LevelError
			default:
				e.Level = sentry.LevelFatal
			}
			sentry.CaptureEvent(e)
			return nil
		})
	})
	return logCfg.Build(sentryOpts)
}

func setupSentry(c config.Log) error {
	if c.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         c.SentryDSN,
		Environment: c.Mode,
	})
}
