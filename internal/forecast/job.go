package forecast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wisdomcg/wisdom-forecast/internal/jobs"
	"github.com/wisdomcg/wisdom-forecast/jobs"
)

// RebuildJob processes forecast rebuild tasks.
type RebuildJob struct {
	service *Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewRebuildJob constructs a job handler.
func NewRebuildJob(service *Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RebuildJob {
	return &RebuildJob{service: service, logger: logger, metrics: metrics}
}

// Handle fulfils the asynq.HandlerFunc contract for rebuild tasks.
func (j *RebuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ForecastRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RebuildID == 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("forecast_rebuild")
	if err := tracker.End(j.service.ProcessRebuild(ctx, payload.RebuildID)); err != nil {
		if j.logger != nil {
			j.logger.Error("forecast rebuild", slog.Int64("rebuild_id", payload.RebuildID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// HandleSweep fulfils the asynq.HandlerFunc contract for the nightly
// recalculation sweep.
func (j *RebuildJob) HandleSweep(ctx context.Context, task *asynq.Task) error {
	tracker := j.metrics.Track("forecast_sweep")
	return tracker.End(j.service.RecalculateSweep(ctx))
}
