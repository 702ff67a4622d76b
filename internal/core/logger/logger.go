package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON production logger for production and a console
// development logger otherwise.
func NewLogger(env, level string) *zap.Logger {
	loggerConfig := zap.NewDevelopmentConfig()
	if env == "production" {
		loggerConfig = zap.NewProductionConfig()
	}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		loggerConfig.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := loggerConfig.Build()
	if nil != err {
		panic(err)
	}

	return logger
}
