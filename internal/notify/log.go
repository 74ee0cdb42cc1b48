package notify

import (
	"context"

	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// Log writes notifications to the service log. Used when no delivery
// transport is configured but progress visibility is still wanted.
type Log struct {
	logger *zap.Logger
}

var _ retriever.Notifier = (*Log)(nil)

// NewLog constructs a log-backed notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("notify")}
}

// Notify records the message; it never fails.
func (l *Log) Notify(_ context.Context, recipientID, text string) error {
	l.logger.Info("notification", zap.String("recipient", recipientID), zap.String("text", text))
	return nil
}
