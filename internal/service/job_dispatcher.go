package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arif-dev/tuition-track-api/pkg/jobs"
)

// JobDispatcher routes queued background jobs to the owning service.
type JobDispatcher struct {
	fees    *FeeService
	rollups *RollupService
	logger  *zap.Logger
}

// NewJobDispatcher constructs a JobDispatcher.
func NewJobDispatcher(fees *FeeService, rollups *RollupService, logger *zap.Logger) *JobDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobDispatcher{fees: fees, rollups: rollups, logger: logger}
}

// Handle implements jobs.Handler.
func (d *JobDispatcher) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeStudentRecalc:
		payload, ok := job.Payload.(StudentRecalcPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return d.fees.RecalculateStudent(ctx, payload.StudentID, payload.MonthKey)
	case JobTypeRevenueRollup:
		payload, ok := job.Payload.(RollupPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return d.rollups.AggregateRevenue(ctx, payload.MonthKey)
	case JobTypeAttendanceRollup:
		payload, ok := job.Payload.(RollupPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return d.rollups.AggregateAttendance(ctx, payload.MonthKey)
	default:
		d.logger.Warn("unknown job type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
}
