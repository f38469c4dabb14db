package logging

import (
	"time"

	"go.uber.org/zap"
)

// LogRequest logs an outbound request.
func LogRequest(log *zap.Logger, component, method, url string, fields ...zap.Field) {
	log.Debug("request",
		append([]zap.Field{zap.String("component", component), zap.String("method", method), zap.String("url", url)}, fields...)...)
}

// LogResponse logs a response received for an outbound request.
func LogResponse(log *zap.Logger, component string, statusCode int, duration time.Duration, size int) {
	log.Debug("response",
		zap.String("component", component),
		zap.Int("status", statusCode),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Int("bytes", size),
	)
}

// LogError logs a failed operation.
func LogError(log *zap.Logger, component, operation string, err error, fields ...zap.Field) {
	log.Error(operation+" failed",
		append([]zap.Field{zap.String("component", component), zap.Error(err)}, fields...)...)
}

// LogTransform logs how many fields a transformation produced.
func LogTransform(log *zap.Logger, component string, inputCount, outputCount int, duration time.Duration) {
	log.Debug("transformed",
		zap.String("component", component),
		zap.Int("in", inputCount),
		zap.Int("out", outputCount),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
}

// LogUpsert logs database upsert operations.
func LogUpsert(log *zap.Logger, component string, count int, duration time.Duration) {
	log.Info("upserted",
		zap.String("component", component),
		zap.Int("count", count),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
}
