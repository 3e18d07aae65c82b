package log

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/document-review/pkg/requestid"
)

// StructuredLogger emits operation scoped log lines. The underlying zap logger is
// resolved on Build so package level loggers pick up zap.ReplaceGlobals.
type StructuredLogger struct {
	name  string
	level zapcore.Level
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *OperationBuilder {
	b := &OperationBuilder{parent: l}
	if id := requestid.FromContext(ctx); id != "" {
		b.fields = append(b.fields, zap.String("request_id", id))
	}
	return b
}

type OperationBuilder struct {
	parent    *StructuredLogger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) Operation(name string) *OperationBuilder {
	b.operation = name
	return b
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value.String()))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	fields := append([]zap.Field{zap.String("operation", b.operation)}, b.fields...)
	return &OperationTracer{
		logger:    zap.L().Named(b.parent.name).With(fields...),
		level:     b.parent.level,
		operation: b.operation,
		start:     time.Now(),
	}
}

// OperationTracer logs the steps and the outcome of a single operation.
type OperationTracer struct {
	logger    *zap.Logger
	level     zapcore.Level
	operation string
	start     time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return &Entry{
		logger: t.logger,
		level:  t.level,
		msg:    t.operation + ": " + name,
		fields: []zap.Field{zap.String("step", name)},
	}
}

func (t *OperationTracer) Success() *Entry {
	return &Entry{
		logger: t.logger,
		level:  t.level,
		msg:    t.operation + " succeeded",
		fields: []zap.Field{zap.Duration("duration", time.Since(t.start))},
	}
}

func (t *OperationTracer) Error(err error) *Entry {
	return &Entry{
		logger: t.logger,
		level:  zapcore.ErrorLevel,
		msg:    t.operation + " failed",
		fields: []zap.Field{zap.Error(err), zap.Duration("duration", time.Since(t.start))},
	}
}

func (t *OperationTracer) Warn(err error) *Entry {
	return &Entry{
		logger: t.logger,
		level:  zapcore.WarnLevel,
		msg:    t.operation + " degraded",
		fields: []zap.Field{zap.Error(err)},
	}
}

type Entry struct {
	logger *zap.Logger
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithUUID(key string, value uuid.UUID) *Entry {
	e.fields = append(e.fields, zap.String(key, value.String()))
	return e
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Entry) Log() {
	if ce := e.logger.Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
