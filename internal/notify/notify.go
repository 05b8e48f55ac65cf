// Package notify delivers settlement notifications. Delivery is best
// effort: callers decide whether a failed delivery is fatal.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier records settlement notifications in the structured log.
// It stands in for an SMS or email channel.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier writing through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements reconcile.Notifier.
func (notifier *LogNotifier) Notify(_ context.Context, userID string, kind string, payload map[string]string) error {
	fields := make([]zap.Field, 0, len(payload)+2)
	fields = append(fields, zap.String("user_id", userID), zap.String("kind", kind))
	for key, value := range payload {
		fields = append(fields, zap.String(key, value))
	}
	notifier.logger.Info("payment settled", fields...)
	return nil
}
