package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arif-dev/tuition-track-api/internal/models"
)

// RollupRepository handles the denormalized monthly rollup tables.
type RollupRepository struct {
	db *sqlx.DB
}

// NewRollupRepository constructs the repository.
func NewRollupRepository(db *sqlx.DB) *RollupRepository {
	return &RollupRepository{db: db}
}

// UpsertRevenue overwrites the platform revenue rollup for one month.
func (r *RollupRepository) UpsertRevenue(ctx context.Context, rollup models.RevenueRollup) error {
	query := `INSERT INTO platform_monthly_revenue (month_key, revenue, paid_students, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (month_key)
DO UPDATE SET revenue = EXCLUDED.revenue, paid_students = EXCLUDED.paid_students, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, rollup.MonthKey, rollup.Revenue, rollup.PaidStudents, rollup.UpdatedAt); err != nil {
		return fmt.Errorf("upsert revenue rollup: %w", err)
	}
	return nil
}

// UpsertAttendance overwrites the platform attendance rollup for one month.
func (r *RollupRepository) UpsertAttendance(ctx context.Context, rollup models.AttendanceRollup) error {
	query := `INSERT INTO platform_monthly_attendance (month_key, approved_count, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (month_key)
DO UPDATE SET approved_count = EXCLUDED.approved_count, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, rollup.MonthKey, rollup.ApprovedCount, rollup.UpdatedAt); err != nil {
		return fmt.Errorf("upsert attendance rollup: %w", err)
	}
	return nil
}

// UpsertTeacherSummary mirrors the monthly revenue under one teacher.
func (r *RollupRepository) UpsertTeacherSummary(ctx context.Context, summary models.TeacherMonthlySummary) error {
	query := `INSERT INTO teacher_monthly_summaries (teacher_id, month_key, revenue, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (teacher_id, month_key)
DO UPDATE SET revenue = EXCLUDED.revenue, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, summary.TeacherID, summary.MonthKey, summary.Revenue, summary.UpdatedAt); err != nil {
		return fmt.Errorf("upsert teacher summary: %w", err)
	}
	return nil
}

// RevenueSeries returns revenue rollups from the given month key onward.
func (r *RollupRepository) RevenueSeries(ctx context.Context, fromKey string) ([]models.RevenueRollup, error) {
	var rollups []models.RevenueRollup
	query := `SELECT month_key, revenue, paid_students, updated_at FROM platform_monthly_revenue WHERE month_key >= $1 ORDER BY month_key`
	if err := r.db.SelectContext(ctx, &rollups, query, fromKey); err != nil {
		return nil, fmt.Errorf("revenue series: %w", err)
	}
	return rollups, nil
}

// AttendanceSeries returns attendance rollups from the given month key onward.
func (r *RollupRepository) AttendanceSeries(ctx context.Context, fromKey string) ([]models.AttendanceRollup, error) {
	var rollups []models.AttendanceRollup
	query := `SELECT month_key, approved_count, updated_at FROM platform_monthly_attendance WHERE month_key >= $1 ORDER BY month_key`
	if err := r.db.SelectContext(ctx, &rollups, query, fromKey); err != nil {
		return nil, fmt.Errorf("attendance series: %w", err)
	}
	return rollups, nil
}

// TeacherSummarySeries aggregates the mirrored per-teacher summaries into a
// platform series. Every teacher carries the same mirrored value, so MAX
// avoids double counting.
func (r *RollupRepository) TeacherSummarySeries(ctx context.Context, fromKey string) ([]models.MonthlyPoint, error) {
	rows := []struct {
		MonthKey string  `db:"month_key"`
		Revenue  float64 `db:"revenue"`
	}{}
	query := `SELECT month_key, MAX(revenue) AS revenue FROM teacher_monthly_summaries WHERE month_key >= $1 GROUP BY month_key ORDER BY month_key`
	if err := r.db.SelectContext(ctx, &rows, query, fromKey); err != nil {
		return nil, fmt.Errorf("teacher summary series: %w", err)
	}
	points := make([]models.MonthlyPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, models.MonthlyPoint{MonthKey: row.MonthKey, Value: row.Revenue})
	}
	return points, nil
}
