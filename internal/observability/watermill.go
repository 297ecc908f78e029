package observability

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// WatermillLogger adapts zap to watermill's LoggerAdapter.
type WatermillLogger struct {
	logger *zap.Logger
}

// NewWatermillLogger wraps a zap logger.
func NewWatermillLogger(logger *zap.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger.Named("watermill")}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Info(msg, zapFields(fields)...)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, zapFields(fields)...)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, zapFields(fields)...)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: w.logger.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
