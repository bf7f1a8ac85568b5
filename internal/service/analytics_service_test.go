package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
)

type fakeAnalyticsRollups struct {
	revenue    []models.RevenueRollup
	attendance []models.AttendanceRollup
	summaries  []models.MonthlyPoint
}

func (f *fakeAnalyticsRollups) RevenueSeries(context.Context, string) ([]models.RevenueRollup, error) {
	return f.revenue, nil
}

func (f *fakeAnalyticsRollups) AttendanceSeries(context.Context, string) ([]models.AttendanceRollup, error) {
	return f.attendance, nil
}

func (f *fakeAnalyticsRollups) TeacherSummarySeries(context.Context, string) ([]models.MonthlyPoint, error) {
	return f.summaries, nil
}

type fakeAnalyticsAttendance struct {
	epochCounts  []models.MonthlyAttendanceCount
	priorCounts  []models.MonthlyAttendanceCount
	recentCounts []models.MonthlyAttendanceCount
	liveCount    int
	epochFrom    time.Time
	scanCalls    []time.Time
}

func (f *fakeAnalyticsAttendance) MonthlyApprovedCounts(_ context.Context, from time.Time) ([]models.MonthlyAttendanceCount, error) {
	f.scanCalls = append(f.scanCalls, from)
	if from.Equal(f.epochFrom) {
		return f.epochCounts, nil
	}
	return f.priorCounts, nil
}

func (f *fakeAnalyticsAttendance) MonthlyCountsFromRecent(context.Context, int) ([]models.MonthlyAttendanceCount, error) {
	return f.recentCounts, nil
}

func (f *fakeAnalyticsAttendance) CountApprovedForMonth(context.Context, time.Time, time.Time) (int, error) {
	return f.liveCount, nil
}

// fixed clock: mid October 2025, epoch August 2025
func newTestAnalyticsService(rollups *fakeAnalyticsRollups, attendance *fakeAnalyticsAttendance) *AnalyticsService {
	svc := NewAnalyticsService(rollups, attendance, nil, nil, time.August, time.Minute)
	svc.now = func() time.Time { return time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC) }
	attendance.epochFrom = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return svc
}

func pointValue(points []models.MonthlyPoint, key string) (float64, bool) {
	for _, p := range points {
		if p.MonthKey == key {
			return p.Value, true
		}
	}
	return 0, false
}

func TestAnalyticsRevenuePrefersRollups(t *testing.T) {
	rollups := &fakeAnalyticsRollups{
		revenue: []models.RevenueRollup{
			{MonthKey: "2025-08", Revenue: 1800},
			{MonthKey: "2025-09", Revenue: 2500.5},
			{MonthKey: "2025-10", Revenue: 900},
		},
	}
	svc := newTestAnalyticsService(rollups, &fakeAnalyticsAttendance{})

	res, cacheHit, err := svc.RevenueSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceRollup, res.Source)
	require.Len(t, res.Points, 3)
	v, ok := pointValue(res.Points, "2025-09")
	require.True(t, ok)
	assert.Equal(t, 2500.5, v)
}

func TestAnalyticsRevenueFallsBackToTeacherSummaries(t *testing.T) {
	rollups := &fakeAnalyticsRollups{
		summaries: []models.MonthlyPoint{
			{MonthKey: "2025-08", Value: 1800},
			{MonthKey: "2025-09", Value: 2500.5},
		},
	}
	svc := newTestAnalyticsService(rollups, &fakeAnalyticsAttendance{})

	res, cacheHit, err := svc.RevenueSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceTeacherSummaries, res.Source)
	v, ok := pointValue(res.Points, "2025-09")
	require.True(t, ok)
	assert.Equal(t, 2500.5, v)
	// Months without data are zero-filled, never dropped.
	v, ok = pointValue(res.Points, "2025-10")
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestAnalyticsRevenueFallbackNeverOverwritesRollups(t *testing.T) {
	rollups := &fakeAnalyticsRollups{
		revenue: []models.RevenueRollup{{MonthKey: "2025-09", Revenue: 2500.5}},
		summaries: []models.MonthlyPoint{
			{MonthKey: "2025-08", Value: 1800},
			{MonthKey: "2025-09", Value: 999}, // stale mirror
		},
	}
	svc := newTestAnalyticsService(rollups, &fakeAnalyticsAttendance{})

	res, cacheHit, err := svc.RevenueSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceRollup, res.Source)

	v, ok := pointValue(res.Points, "2025-09")
	require.True(t, ok)
	assert.Equal(t, 2500.5, v, "rollup value must win over the fallback")
	v, ok = pointValue(res.Points, "2025-08")
	require.True(t, ok)
	assert.Equal(t, 1800.0, v, "fallback fills only missing months")
}

func TestAnalyticsAttendanceUsesRollupsWithLiveCurrentMonth(t *testing.T) {
	rollups := &fakeAnalyticsRollups{
		attendance: []models.AttendanceRollup{
			{MonthKey: "2025-09", ApprovedCount: 40},
			{MonthKey: "2025-10", ApprovedCount: 3}, // stale rollup for the running month
		},
	}
	attendance := &fakeAnalyticsAttendance{liveCount: 7}
	svc := newTestAnalyticsService(rollups, attendance)

	res, cacheHit, err := svc.AttendanceSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceRollup, res.Source)

	v, ok := pointValue(res.Points, "2025-10")
	require.True(t, ok)
	assert.Equal(t, 7.0, v, "current month must come from the live count")
	v, ok = pointValue(res.Points, "2025-09")
	require.True(t, ok)
	assert.Equal(t, 40.0, v)
}

func TestAnalyticsAttendanceFallsBackToEpochScan(t *testing.T) {
	attendance := &fakeAnalyticsAttendance{
		epochCounts: []models.MonthlyAttendanceCount{{MonthKey: "2025-08", Count: 30}},
		liveCount:   5,
	}
	svc := newTestAnalyticsService(&fakeAnalyticsRollups{}, attendance)

	res, cacheHit, err := svc.AttendanceSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceAttendanceScan, res.Source)

	v, ok := pointValue(res.Points, "2025-08")
	require.True(t, ok)
	assert.Equal(t, 30.0, v)
	require.Len(t, attendance.scanCalls, 1)
	assert.Equal(t, attendance.epochFrom, attendance.scanCalls[0])
}

func TestAnalyticsAttendanceScansPriorEpochThenRecent(t *testing.T) {
	attendance := &fakeAnalyticsAttendance{
		recentCounts: []models.MonthlyAttendanceCount{{MonthKey: "2025-09", Count: 12}},
		liveCount:    2,
	}
	svc := newTestAnalyticsService(&fakeAnalyticsRollups{}, attendance)

	res, cacheHit, err := svc.AttendanceSeries(context.Background())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, dto.SeriesSourceAttendanceScan, res.Source)

	// Both grouped scans were attempted before the bounded recent scan.
	require.Len(t, attendance.scanCalls, 2)
	assert.Equal(t, attendance.epochFrom.AddDate(-1, 0, 0), attendance.scanCalls[1])

	v, ok := pointValue(res.Points, "2025-09")
	require.True(t, ok)
	assert.Equal(t, 12.0, v)
}

func TestAnalyticsEpochStartRollsBackBeforeAugust(t *testing.T) {
	svc := NewAnalyticsService(&fakeAnalyticsRollups{}, &fakeAnalyticsAttendance{}, nil, nil, time.August, time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), svc.epochStart())

	svc.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), svc.epochStart())
}
