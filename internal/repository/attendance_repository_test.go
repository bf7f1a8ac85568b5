package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arif-dev/tuition-track-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceRowColumns() []string {
	return []string{"id", "student_id", "student_name", "date", "status", "month", "year", "approved_by", "approved_at", "created_at", "updated_at"}
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(attendanceRowColumns()).
		AddRow("a1", "s1", "Student One", date, "pending", 9, 2025, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("INSERT INTO attendance_records .*ON CONFLICT \\(student_id, date\\) DO NOTHING").
		WillReturnRows(rows)

	record, err := repo.Create(context.Background(), &models.AttendanceRecord{
		StudentID:   "s1",
		StudentName: "Student One",
		Date:        date,
		Status:      models.AttendanceStatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", record.ID)
	assert.Equal(t, 9, record.Month)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicateReturnsNoRows(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns()))

	_, err := repo.Create(context.Background(), &models.AttendanceRecord{
		StudentID: "s1",
		Date:      time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendanceStatusPending,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryResolveOnlyTouchesPending(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(attendanceRowColumns()).
		AddRow("a1", "s1", "Student One", date, "approved", 9, 2025, "t1", time.Now(), time.Now(), time.Now())
	mock.ExpectQuery("UPDATE attendance_records").
		WithArgs(string(models.AttendanceStatusApproved), "t1", sqlmock.AnyArg(), "a1", string(models.AttendanceStatusPending)).
		WillReturnRows(rows)

	record, err := repo.Resolve(context.Background(), "a1", "t1", models.AttendanceStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusApproved, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryResolveAlreadyResolved(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("UPDATE attendance_records").
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns()))

	_, err := repo.Resolve(context.Background(), "a1", "t1", models.AttendanceStatusRejected)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	status := models.AttendanceStatusApproved
	date := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(attendanceRowColumns()).
		AddRow("a1", "s1", "Student One", date, "approved", 9, 2025, "t1", time.Now(), time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM attendance_records WHERE 1=1 AND student_id = \\$1 AND status = \\$2 ORDER BY date DESC LIMIT 50 OFFSET 0").
		WithArgs("s1", string(status)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records WHERE 1=1 AND student_id = $1 AND status = $2")).
		WithArgs("s1", string(status)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{StudentID: "s1", Status: &status})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountApprovedInRange(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records WHERE student_id = $1 AND status = $2 AND date >= $3 AND date <= $4")).
		WithArgs("s1", string(models.AttendanceStatusApproved), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	count, err := repo.CountApprovedInRange(context.Background(), "s1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlyApprovedCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"month_key", "cnt"}).
		AddRow("2025-08", 40).
		AddRow("2025-09", 25)
	mock.ExpectQuery("SELECT to_char\\(date, 'YYYY-MM'\\) AS month_key, COUNT\\(\\*\\) AS cnt").
		WithArgs(string(models.AttendanceStatusApproved), from).
		WillReturnRows(rows)

	counts, err := repo.MonthlyApprovedCounts(context.Background(), from)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "2025-08", counts[0].MonthKey)
	assert.Equal(t, 40, counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlyCountsFromRecent(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"month_key", "cnt"}).AddRow("2025-09", 12)
	mock.ExpectQuery("FROM \\(SELECT date FROM attendance_records WHERE status = \\$1 ORDER BY date DESC LIMIT \\$2\\) recent").
		WithArgs(string(models.AttendanceStatusApproved), 500).
		WillReturnRows(rows)

	counts, err := repo.MonthlyCountsFromRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 12, counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
