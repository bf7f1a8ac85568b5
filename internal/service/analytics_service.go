package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
	"github.com/arif-dev/tuition-track-api/pkg/export"
)

const (
	cacheKeyRevenueSeries    = "analytics:revenue"
	cacheKeyAttendanceSeries = "analytics:attendance"
)

type analyticsRollupRepository interface {
	RevenueSeries(ctx context.Context, fromKey string) ([]models.RevenueRollup, error)
	AttendanceSeries(ctx context.Context, fromKey string) ([]models.AttendanceRollup, error)
	TeacherSummarySeries(ctx context.Context, fromKey string) ([]models.MonthlyPoint, error)
}

type analyticsAttendanceRepository interface {
	MonthlyApprovedCounts(ctx context.Context, from time.Time) ([]models.MonthlyAttendanceCount, error)
	MonthlyCountsFromRecent(ctx context.Context, limit int) ([]models.MonthlyAttendanceCount, error)
	CountApprovedForMonth(ctx context.Context, from, to time.Time) (int, error)
}

// AnalyticsService serves month-bucketed revenue and attendance series for
// the dashboard. Reads prefer rollup tables and degrade through fallbacks
// when rollups have not been aggregated yet; the current month's attendance
// is always overridden with a live count so the chart never lags behind
// approvals that happened after the last rollup.
type AnalyticsService struct {
	rollups     analyticsRollupRepository
	attendance  analyticsAttendanceRepository
	cache       *CacheService
	logger      *zap.Logger
	epochMonth  time.Month
	cacheTTL    time.Duration
	recentLimit int
	now         func() time.Time
}

// NewAnalyticsService constructs an AnalyticsService. epochMonth is the month
// the platform launched in; series start there and fallbacks never scan
// earlier data except through the bounded recent-records scan.
func NewAnalyticsService(
	rollups analyticsRollupRepository,
	attendance analyticsAttendanceRepository,
	cache *CacheService,
	logger *zap.Logger,
	epochMonth time.Month,
	cacheTTL time.Duration,
) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AnalyticsService{
		rollups:     rollups,
		attendance:  attendance,
		cache:       cache,
		logger:      logger,
		epochMonth:  epochMonth,
		cacheTTL:    cacheTTL,
		recentLimit: 500,
		now:         time.Now,
	}
}

// RevenueSeries returns monthly revenue from the platform epoch to the
// current month. Rollups are preferred; months missing from the rollup table
// are filled from teacher summaries, never the other way around.
func (s *AnalyticsService) RevenueSeries(ctx context.Context) (*dto.MonthlySeriesResponse, bool, error) {
	if cached := s.fromCache(ctx, cacheKeyRevenueSeries); cached != nil {
		return cached, true, nil
	}

	epoch := s.epochStart()
	fromKey := models.MonthKey(epoch)

	rollups, err := s.rollups.RevenueSeries(ctx, fromKey)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read revenue rollups")
	}

	values := make(map[string]float64, len(rollups))
	for _, rollup := range rollups {
		values[rollup.MonthKey] = rollup.Revenue
	}

	source := dto.SeriesSourceRollup
	if len(values) < s.monthCount(epoch) {
		summaries, err := s.rollups.TeacherSummarySeries(ctx, fromKey)
		if err != nil {
			s.logger.Warn("teacher summary fallback failed", zap.Error(err))
		}
		filled := false
		for _, point := range summaries {
			if _, ok := values[point.MonthKey]; ok {
				continue
			}
			values[point.MonthKey] = point.Value
			filled = true
		}
		if filled && len(rollups) == 0 {
			source = dto.SeriesSourceTeacherSummaries
		}
	}

	resp := &dto.MonthlySeriesResponse{
		Points: s.buildSeries(epoch, values),
		Source: source,
	}
	s.toCache(ctx, cacheKeyRevenueSeries, resp)
	return resp, false, nil
}

// AttendanceSeries returns monthly approved attendance counts from the
// platform epoch to the current month. When rollups are absent it falls back
// to a grouped scan from the epoch, then from the prior year's epoch, then
// to a scan over the most recent records. The current month's bucket is
// recomputed live regardless of source.
func (s *AnalyticsService) AttendanceSeries(ctx context.Context) (*dto.MonthlySeriesResponse, bool, error) {
	if cached := s.fromCache(ctx, cacheKeyAttendanceSeries); cached != nil {
		return cached, true, nil
	}

	epoch := s.epochStart()
	values, source, err := s.attendanceValues(ctx, epoch)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	first, last := models.MonthBounds(now)
	live, err := s.attendance.CountApprovedForMonth(ctx, first, last)
	if err != nil {
		s.logger.Warn("live current-month count failed, serving stored value", zap.Error(err))
	} else {
		values[models.MonthKey(now)] = float64(live)
	}

	resp := &dto.MonthlySeriesResponse{
		Points: s.buildSeries(epoch, values),
		Source: source,
	}
	s.toCache(ctx, cacheKeyAttendanceSeries, resp)
	return resp, false, nil
}

func (s *AnalyticsService) attendanceValues(ctx context.Context, epoch time.Time) (map[string]float64, string, error) {
	rollups, err := s.rollups.AttendanceSeries(ctx, models.MonthKey(epoch))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attendance rollups")
	}
	if len(rollups) > 0 {
		values := make(map[string]float64, len(rollups))
		for _, rollup := range rollups {
			values[rollup.MonthKey] = float64(rollup.ApprovedCount)
		}
		return values, dto.SeriesSourceRollup, nil
	}

	for _, from := range []time.Time{epoch, epoch.AddDate(-1, 0, 0)} {
		counts, err := s.attendance.MonthlyApprovedCounts(ctx, from)
		if err != nil {
			s.logger.Warn("grouped attendance scan failed", zap.Time("from", from), zap.Error(err))
			continue
		}
		if len(counts) > 0 {
			return countValues(counts), dto.SeriesSourceAttendanceScan, nil
		}
	}

	counts, err := s.attendance.MonthlyCountsFromRecent(ctx, s.recentLimit)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan recent attendance")
	}
	return countValues(counts), dto.SeriesSourceAttendanceScan, nil
}

// RevenueDataset shapes the revenue series for CSV export.
func (s *AnalyticsService) RevenueDataset(ctx context.Context) (*export.Dataset, error) {
	series, _, err := s.RevenueSeries(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(series.Points))
	for _, point := range series.Points {
		rows = append(rows, map[string]string{
			"month":   point.MonthKey,
			"revenue": fmt.Sprintf("%.2f", point.Value),
		})
	}
	return &export.Dataset{
		Headers: []string{"month", "revenue"},
		Rows:    rows,
	}, nil
}

// epochStart returns the first day of the current platform year, which
// begins in epochMonth. Before epochMonth the year started the previous
// calendar year.
func (s *AnalyticsService) epochStart() time.Time {
	now := s.now()
	year := now.Year()
	if now.Month() < s.epochMonth {
		year--
	}
	return time.Date(year, s.epochMonth, 1, 0, 0, 0, 0, time.UTC)
}

func (s *AnalyticsService) monthCount(epoch time.Time) int {
	now := s.now()
	return (now.Year()-epoch.Year())*12 + int(now.Month()) - int(epoch.Month()) + 1
}

// buildSeries zero-fills every month from the epoch through the current
// month so chart buckets are continuous.
func (s *AnalyticsService) buildSeries(epoch time.Time, values map[string]float64) []models.MonthlyPoint {
	count := s.monthCount(epoch)
	points := make([]models.MonthlyPoint, 0, count)
	for i := 0; i < count; i++ {
		key := models.MonthKey(epoch.AddDate(0, i, 0))
		points = append(points, models.MonthlyPoint{MonthKey: key, Value: values[key]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].MonthKey < points[j].MonthKey })
	return points
}

func (s *AnalyticsService) fromCache(ctx context.Context, key string) *dto.MonthlySeriesResponse {
	if s.cache == nil || !s.cache.Enabled() {
		return nil
	}
	var resp dto.MonthlySeriesResponse
	hit, err := s.cache.Get(ctx, key, &resp)
	if err != nil || !hit {
		return nil
	}
	return &resp
}

func (s *AnalyticsService) toCache(ctx context.Context, key string, resp *dto.MonthlySeriesResponse) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache analytics series", zap.String("key", key), zap.Error(err))
	}
}

func countValues(counts []models.MonthlyAttendanceCount) map[string]float64 {
	values := make(map[string]float64, len(counts))
	for _, count := range counts {
		values[count.MonthKey] = float64(count.Count)
	}
	return values
}
