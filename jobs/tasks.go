// Package jobs defines background task types and the Asynq worker.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeForecastRebuild regenerates one forecast's line set.
	TaskTypeForecastRebuild = "forecast:rebuild"
	// TaskTypeForecastSweep reruns recalculation over every forecast.
	TaskTypeForecastSweep = "forecast:sweep"
)

// ForecastRebuildPayload identifies the rebuild record to process.
type ForecastRebuildPayload struct {
	RebuildID int64 `json:"rebuild_id"`
}

// NewForecastRebuildTask constructs an Asynq task.
func NewForecastRebuildTask(payload ForecastRebuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeForecastRebuild, data), nil
}

// NewForecastSweepTask constructs the nightly sweep task.
func NewForecastSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeForecastSweep, nil)
}
