// Package jobs defines the background task types and the asynq worker
// bootstrap for the servicing engine.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCausationRun accrues one kind for one period across the portfolio.
	TaskCausationRun = "causation:run"
	// TaskCausationSweep runs all accrual kinds for the period that just
	// ended; registered on the monthly cron schedule.
	TaskCausationSweep = "causation:sweep"
)

// CausationRunPayload identifies one causation run.
type CausationRunPayload struct {
	PeriodID int64  `json:"period_id"`
	Kind     string `json:"kind"`
}

// NewCausationRunTask constructs a causation run task.
func NewCausationRunTask(payload CausationRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCausationRun, data), nil
}

// NewCausationSweepTask constructs the scheduled sweep task.
func NewCausationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCausationSweep, nil)
}
