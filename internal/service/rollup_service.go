package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
)

type rollupFeeRepository interface {
	SumPaidForMonth(ctx context.Context, monthKey string) (float64, int, error)
	ListObservedMonthKeys(ctx context.Context) ([]string, error)
}

type rollupAttendanceRepository interface {
	CountApprovedForMonth(ctx context.Context, from, to time.Time) (int, error)
}

type rollupRepository interface {
	UpsertRevenue(ctx context.Context, rollup models.RevenueRollup) error
	UpsertAttendance(ctx context.Context, rollup models.AttendanceRollup) error
	UpsertTeacherSummary(ctx context.Context, summary models.TeacherMonthlySummary) error
}

type rollupTeacherRepository interface {
	ListTeacherIDs(ctx context.Context) ([]string, error)
}

type rollupCacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// RollupService recomputes monthly revenue and attendance rollups from raw
// data. Every aggregation is a full recompute for its month, so replaying a
// rollup job after partial failure converges on the same totals.
type RollupService struct {
	fees       rollupFeeRepository
	attendance rollupAttendanceRepository
	rollups    rollupRepository
	teachers   rollupTeacherRepository
	cache      rollupCacheInvalidator
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewRollupService constructs a RollupService.
func NewRollupService(
	fees rollupFeeRepository,
	attendance rollupAttendanceRepository,
	rollups rollupRepository,
	teachers rollupTeacherRepository,
	cache rollupCacheInvalidator,
	metrics *MetricsService,
	logger *zap.Logger,
) *RollupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RollupService{
		fees:       fees,
		attendance: attendance,
		rollups:    rollups,
		teachers:   teachers,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// AggregateRevenue recomputes the platform revenue rollup for a month and
// mirrors the platform totals into every teacher's monthly summary.
// Per-teacher write failures are logged and skipped; the teacher's summary
// catches up on the next aggregation of the same month.
func (s *RollupService) AggregateRevenue(ctx context.Context, monthKey string) error {
	if _, err := models.ParseMonthKey(monthKey); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}

	start := s.now()
	revenue, paidStudents, err := s.fees.SumPaidForMonth(ctx, monthKey)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum paid dues")
	}

	rollup := models.RevenueRollup{
		MonthKey:     monthKey,
		Revenue:      revenue,
		PaidStudents: paidStudents,
		UpdatedAt:    s.now().UTC(),
	}
	if err := s.rollups.UpsertRevenue(ctx, rollup); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save revenue rollup")
	}

	teacherIDs, err := s.teachers.ListTeacherIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list teachers for summaries", zap.String("month", monthKey), zap.Error(err))
	}
	for _, teacherID := range teacherIDs {
		summary := models.TeacherMonthlySummary{
			TeacherID: teacherID,
			MonthKey:  monthKey,
			Revenue:   revenue,
			UpdatedAt: rollup.UpdatedAt,
		}
		if err := s.rollups.UpsertTeacherSummary(ctx, summary); err != nil {
			s.logger.Error("failed to save teacher summary",
				zap.String("teacher_id", teacherID),
				zap.String("month", monthKey),
				zap.Error(err))
		}
	}

	s.invalidateAnalytics(ctx)
	if s.metrics != nil {
		s.metrics.ObserveRollup("revenue", s.now().Sub(start))
	}

	s.logger.Info("revenue rollup updated",
		zap.String("month", monthKey),
		zap.Float64("revenue", revenue),
		zap.Int("paid_students", paidStudents))
	return nil
}

// AggregateAttendance recomputes the approved attendance rollup for a month.
func (s *RollupService) AggregateAttendance(ctx context.Context, monthKey string) error {
	month, err := models.ParseMonthKey(monthKey)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}

	start := s.now()
	first, last := models.MonthBounds(month)
	count, err := s.attendance.CountApprovedForMonth(ctx, first, last)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count approved attendance")
	}

	rollup := models.AttendanceRollup{
		MonthKey:      monthKey,
		ApprovedCount: count,
		UpdatedAt:     s.now().UTC(),
	}
	if err := s.rollups.UpsertAttendance(ctx, rollup); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance rollup")
	}

	s.invalidateAnalytics(ctx)
	if s.metrics != nil {
		s.metrics.ObserveRollup("attendance", s.now().Sub(start))
	}
	return nil
}

// Backfill recomputes revenue and attendance rollups for every month that
// has at least one recorded due. Failures for individual months are logged
// and skipped so one bad month cannot block the rest.
func (s *RollupService) Backfill(ctx context.Context) (*dto.BackfillResponse, error) {
	monthKeys, err := s.fees.ListObservedMonthKeys(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list observed months")
	}

	processed := make([]string, 0, len(monthKeys))
	for _, monthKey := range monthKeys {
		if err := s.AggregateRevenue(ctx, monthKey); err != nil {
			s.logger.Error("backfill: revenue aggregation failed", zap.String("month", monthKey), zap.Error(err))
			continue
		}
		if err := s.AggregateAttendance(ctx, monthKey); err != nil {
			s.logger.Error("backfill: attendance aggregation failed", zap.String("month", monthKey), zap.Error(err))
			continue
		}
		processed = append(processed, monthKey)
	}

	return &dto.BackfillResponse{
		MonthsProcessed: len(processed),
		MonthKeys:       processed,
	}, nil
}

func (s *RollupService) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "analytics:*"); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
