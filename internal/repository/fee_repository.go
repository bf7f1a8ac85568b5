package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
)

// FeeRepository handles persistence for monthly dues.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

const dueColumns = `student_id, month_key, due, approved_days, daily_rate, status, payment_date, amount_paid, last_calculated, legacy_amount`

// GetDue loads one due, normalizing legacy rows.
func (r *FeeRepository) GetDue(ctx context.Context, studentID, monthKey string) (*models.MonthlyDue, error) {
	var row models.MonthlyDueRow
	query := fmt.Sprintf("SELECT %s FROM monthly_dues WHERE student_id = $1 AND month_key = $2", dueColumns)
	if err := r.db.GetContext(ctx, &row, query, studentID, monthKey); err != nil {
		return nil, err
	}
	due := row.Normalize()
	return &due, nil
}

// ListDuesByStudent returns every due for a student ordered by month.
func (r *FeeRepository) ListDuesByStudent(ctx context.Context, studentID string) ([]models.MonthlyDue, error) {
	var rows []models.MonthlyDueRow
	query := fmt.Sprintf("SELECT %s FROM monthly_dues WHERE student_id = $1 ORDER BY month_key", dueColumns)
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list dues: %w", err)
	}
	dues := make([]models.MonthlyDue, 0, len(rows))
	for _, row := range rows {
		dues = append(dues, row.Normalize())
	}
	return dues, nil
}

// UpsertCalculated writes the derived fields of a due in one statement,
// leaving status, payment_date and amount_paid untouched so a concurrent
// payment can never be lost between read and write.
func (r *FeeRepository) UpsertCalculated(ctx context.Context, due models.MonthlyDue) error {
	query := `INSERT INTO monthly_dues (student_id, month_key, due, approved_days, daily_rate, status, last_calculated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (student_id, month_key)
DO UPDATE SET due = EXCLUDED.due,
              approved_days = EXCLUDED.approved_days,
              daily_rate = EXCLUDED.daily_rate,
              last_calculated = EXCLUDED.last_calculated,
              legacy_amount = NULL`
	_, err := r.db.ExecContext(ctx, query,
		due.StudentID, due.MonthKey, due.Due, due.ApprovedDays, due.DailyRate,
		models.DueStatusUnpaid, due.LastCalculated)
	if err != nil {
		return fmt.Errorf("upsert calculated due: %w", err)
	}
	return nil
}

// MarkPaid flips a due from unpaid to paid exactly once. The row is locked
// for the duration of the transaction.
func (r *FeeRepository) MarkPaid(ctx context.Context, studentID, monthKey string, amount *float64, paidAt time.Time) (*models.MonthlyDue, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mark paid: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	var row models.MonthlyDueRow
	query := fmt.Sprintf("SELECT %s FROM monthly_dues WHERE student_id = $1 AND month_key = $2 FOR UPDATE", dueColumns)
	if err := tx.GetContext(ctx, &row, query, studentID, monthKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNoDueRecorded
		}
		return nil, fmt.Errorf("load due for payment: %w", err)
	}
	due := row.Normalize()
	if due.Status == models.DueStatusPaid {
		return nil, appErrors.ErrAlreadyPaid
	}

	paid := due.Due
	if amount != nil {
		paid = models.Round2(*amount)
	}
	update := `UPDATE monthly_dues
SET status = $1, payment_date = $2, amount_paid = $3
WHERE student_id = $4 AND month_key = $5`
	if _, err := tx.ExecContext(ctx, update, models.DueStatusPaid, paidAt, paid, studentID, monthKey); err != nil {
		return nil, fmt.Errorf("mark due paid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mark paid: %w", err)
	}
	committed = true

	due.Status = models.DueStatusPaid
	due.PaymentDate = &paidAt
	due.AmountPaid = &paid
	return &due, nil
}

// SumPaidForMonth recomputes total paid revenue for one month across all
// active students.
func (r *FeeRepository) SumPaidForMonth(ctx context.Context, monthKey string) (float64, int, error) {
	row := struct {
		Revenue float64 `db:"revenue"`
		Count   int     `db:"cnt"`
	}{}
	query := `SELECT COALESCE(SUM(d.amount_paid), 0) AS revenue, COUNT(*) AS cnt
FROM monthly_dues d
JOIN users u ON u.id = d.student_id
WHERE d.month_key = $1 AND d.status = $2 AND u.role = $3 AND u.active = TRUE`
	if err := r.db.GetContext(ctx, &row, query, monthKey, models.DueStatusPaid, models.RoleStudent); err != nil {
		return 0, 0, fmt.Errorf("sum paid for month: %w", err)
	}
	return models.Round2(row.Revenue), row.Count, nil
}

// ListObservedMonthKeys returns every month key present across all dues.
func (r *FeeRepository) ListObservedMonthKeys(ctx context.Context) ([]string, error) {
	var keys []string
	query := `SELECT DISTINCT month_key FROM monthly_dues ORDER BY month_key`
	if err := r.db.SelectContext(ctx, &keys, query); err != nil {
		return nil, fmt.Errorf("list observed month keys: %w", err)
	}
	return keys, nil
}
