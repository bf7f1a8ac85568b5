package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
)

func newFeeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func dueRowColumns() []string {
	return []string{"student_id", "month_key", "due", "approved_days", "daily_rate", "status", "payment_date", "amount_paid", "last_calculated", "legacy_amount"}
}

func TestFeeRepositoryGetDueNormalizesLegacyRow(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows(dueRowColumns()).
		AddRow("s1", "2025-09", nil, nil, nil, nil, nil, nil, nil, 1500.0)
	mock.ExpectQuery("SELECT .* FROM monthly_dues WHERE student_id").
		WithArgs("s1", "2025-09").
		WillReturnRows(rows)

	due, err := repo.GetDue(context.Background(), "s1", "2025-09")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, due.Due)
	assert.Equal(t, models.DueStatusUnpaid, due.Status)
	assert.Zero(t, due.ApprovedDays)
	assert.Nil(t, due.AmountPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryUpsertCalculatedLeavesPaymentFields(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectExec("INSERT INTO monthly_dues .*ON CONFLICT \\(student_id, month_key\\)").
		WithArgs("s1", "2025-09", 1000.0, 10, 100.0, string(models.DueStatusUnpaid), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertCalculated(context.Background(), models.MonthlyDue{
		StudentID:      "s1",
		MonthKey:       "2025-09",
		Due:            1000.0,
		ApprovedDays:   10,
		DailyRate:      100.0,
		LastCalculated: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaidDefaultsToDueAmount(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	paidAt := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	rows := sqlmock.NewRows(dueRowColumns()).
		AddRow("s1", "2025-09", 1000.0, 10, 100.0, "unpaid", nil, nil, time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM monthly_dues WHERE student_id = \\$1 AND month_key = \\$2 FOR UPDATE").
		WithArgs("s1", "2025-09").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE monthly_dues").
		WithArgs(string(models.DueStatusPaid), paidAt, 1000.0, "s1", "2025-09").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	due, err := repo.MarkPaid(context.Background(), "s1", "2025-09", nil, paidAt)
	require.NoError(t, err)
	assert.Equal(t, models.DueStatusPaid, due.Status)
	require.NotNil(t, due.AmountPaid)
	assert.Equal(t, 1000.0, *due.AmountPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaidAlreadyPaid(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows(dueRowColumns()).
		AddRow("s1", "2025-09", 1000.0, 10, 100.0, "paid", time.Now(), 1000.0, time.Now(), nil)
	mock.ExpectQuery("SELECT .* FOR UPDATE").
		WithArgs("s1", "2025-09").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.MarkPaid(context.Background(), "s1", "2025-09", nil, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaidAlreadyPaidLegacyRow(t *testing.T) {
	// Paying a legacy row records payment columns but leaves due NULL; the
	// paid status must still block a second payment.
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows(dueRowColumns()).
		AddRow("s1", "2025-07", nil, nil, nil, "paid", time.Now(), 500.0, nil, 500.0)
	mock.ExpectQuery("SELECT .* FOR UPDATE").
		WithArgs("s1", "2025-07").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.MarkPaid(context.Background(), "s1", "2025-07", nil, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryMarkPaidNoDueRecorded(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FOR UPDATE").
		WithArgs("s1", "2025-09").
		WillReturnRows(sqlmock.NewRows(dueRowColumns()))
	mock.ExpectRollback()

	_, err := repo.MarkPaid(context.Background(), "s1", "2025-09", nil, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNoDueRecorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositorySumPaidForMonth(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows([]string{"revenue", "cnt"}).AddRow(2500.504, 3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(d.amount_paid), 0) AS revenue, COUNT(*) AS cnt")).
		WithArgs("2025-09", string(models.DueStatusPaid), string(models.RoleStudent)).
		WillReturnRows(rows)

	revenue, count, err := repo.SumPaidForMonth(context.Background(), "2025-09")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, revenue)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryListObservedMonthKeys(t *testing.T) {
	db, mock, cleanup := newFeeRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	rows := sqlmock.NewRows([]string{"month_key"}).AddRow("2025-08").AddRow("2025-09")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT month_key FROM monthly_dues ORDER BY month_key")).
		WillReturnRows(rows)

	keys, err := repo.ListObservedMonthKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-08", "2025-09"}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}
