package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
)

// Log writes alerts to a zap logger. Useful in development and as the
// fallback when no webhook is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, alert Alert, recipients []string) (Result, error) {
	l.logger.Info("deadline alert",
		zap.String("period", alert.Period.Code),
		zap.String("deadline", alert.Period.Deadline.String()),
		zap.Int("milestone", alert.Milestone),
		zap.Int("days_until", alert.DaysUntil),
		zap.Int("submitted", alert.Counts.Submitted),
		zap.Int("pending", alert.Counts.Pending),
		zap.Int("approved", alert.Counts.Approved),
		zap.Int("denied", alert.Counts.Denied),
		zap.Strings("recipients", recipients),
	)
	return Result{Outcome: generic.DeliveryAccepted, Detail: "logged"}, nil
}

var _ Notifier = (*Log)(nil)
