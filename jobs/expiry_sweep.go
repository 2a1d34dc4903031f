package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/cotiza-erp/cotiza-erp/internal/observability"
)

// TaskExpirySweep transitions lapsed quotations to expired.
const TaskExpirySweep = "documents:expiry_sweep"

// ExpirySweeper is the part of the documents service the sweep needs.
type ExpirySweeper interface {
	ExpireQuotations(ctx context.Context) (int, error)
}

// ExpirySweepJob runs the quotation auto-expiry sweep.
type ExpirySweepJob struct {
	Service ExpirySweeper
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewExpirySweepJob initialises the sweep handler.
func NewExpirySweepJob(service ExpirySweeper, logger *slog.Logger, metrics *observability.Metrics) *ExpirySweepJob {
	return &ExpirySweepJob{Service: service, Logger: logger, Metrics: metrics}
}

// NewExpirySweepTask constructs the Asynq task.
func NewExpirySweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskExpirySweep, nil), nil
}

// Handle executes the sweep.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("expiry sweep: handler not configured")
	}

	expired, err := j.Service.ExpireQuotations(ctx)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("expiry sweep failed", slog.Any("error", err), slog.Int("expired", expired))
		}
		return err
	}

	if j.Metrics != nil {
		j.Metrics.ObserveExpired(expired)
	}
	if j.Logger != nil {
		j.Logger.Info("expiry sweep finished", slog.Int("expired", expired))
	}
	return nil
}
