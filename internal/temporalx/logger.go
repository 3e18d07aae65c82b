package temporalx

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapLogger routes SDK log lines to zap.
type zapLogger struct {
	log *zap.SugaredLogger
}

var _ log.Logger = (*zapLogger)(nil)

func newLogger(l *zap.SugaredLogger) *zapLogger {
	return &zapLogger{log: l}
}

func (z *zapLogger) Debug(msg string, keyvals ...interface{}) {
	z.log.Debugw(msg, keyvals...)
}

func (z *zapLogger) Info(msg string, keyvals ...interface{}) {
	z.log.Infow(msg, keyvals...)
}

func (z *zapLogger) Warn(msg string, keyvals ...interface{}) {
	z.log.Warnw(msg, keyvals...)
}

func (z *zapLogger) Error(msg string, keyvals ...interface{}) {
	z.log.Errorw(msg, keyvals...)
}
