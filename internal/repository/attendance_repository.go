package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arif-dev/tuition-track-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, student_id, student_name, date, status, month, year, approved_by, approved_at, created_at, updated_at`

// Create inserts a single record. It returns sql.ErrNoRows when a record for
// the same (student, date) already exists.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Month = int(record.Date.Month())
	record.Year = record.Date.Year()
	record.CreatedAt = now
	record.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO attendance_records (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, date) DO NOTHING
RETURNING %s`, attendanceColumns, attendanceColumns)
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.StudentID, record.StudentName, record.Date, record.Status,
		record.Month, record.Year, record.ApprovedBy, record.ApprovedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// BulkInsert inserts many records best-effort, skipping duplicates and
// reporting them as conflicts.
func (r *AttendanceRepository) BulkInsert(ctx context.Context, records []models.AttendanceRecord) (int, []models.AttendanceBulkConflict, error) {
	if len(records) == 0 {
		return 0, nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin bulk attendance: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	query := `INSERT INTO attendance_records (id, student_id, student_name, date, status, month, year, approved_by, approved_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, date) DO NOTHING RETURNING id`
	now := time.Now().UTC()
	inserted := 0
	conflicts := make([]models.AttendanceBulkConflict, 0)
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Month = int(rec.Date.Month())
		rec.Year = rec.Date.Year()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		var insertedID string
		err := tx.QueryRowxContext(ctx, query,
			rec.ID, rec.StudentID, rec.StudentName, rec.Date, rec.Status,
			rec.Month, rec.Year, rec.ApprovedBy, rec.ApprovedAt, rec.CreatedAt, rec.UpdatedAt).Scan(&insertedID)
		if err != nil {
			if err == sql.ErrNoRows {
				conflicts = append(conflicts, models.AttendanceBulkConflict{
					StudentID: rec.StudentID,
					Date:      rec.Date,
					Reason:    "record already exists for this date",
				})
				continue
			}
			return 0, nil, fmt.Errorf("bulk insert attendance: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit bulk attendance: %w", err)
	}
	committed = true
	return inserted, conflicts, nil
}

// FindByID loads a single record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE id = $1", attendanceColumns)
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Resolve moves a pending record to approved or rejected. It returns
// sql.ErrNoRows when the record does not exist or is no longer pending.
func (r *AttendanceRepository) Resolve(ctx context.Context, id, approverID string, status models.AttendanceStatus) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE attendance_records
SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
WHERE id = $4 AND status = $5
RETURNING %s`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, status, approverID, now, id, models.AttendanceStatusPending); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	sortBy := filter.SortBy
	allowedSort := map[string]string{
		"date":       "date",
		"status":     "status",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		attendanceColumns, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// CountApprovedInRange counts a student's approved records between two dates inclusive.
func (r *AttendanceRepository) CountApprovedInRange(ctx context.Context, studentID string, from, to time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attendance_records WHERE student_id = $1 AND status = $2 AND date >= $3 AND date <= $4`
	if err := r.db.GetContext(ctx, &count, query, studentID, models.AttendanceStatusApproved, from, to); err != nil {
		return 0, fmt.Errorf("count approved attendance: %w", err)
	}
	return count, nil
}

// CountApprovedForMonth counts approved records across all students for one month.
func (r *AttendanceRepository) CountApprovedForMonth(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attendance_records WHERE status = $1 AND date >= $2 AND date <= $3`
	if err := r.db.GetContext(ctx, &count, query, models.AttendanceStatusApproved, from, to); err != nil {
		return 0, fmt.Errorf("count approved for month: %w", err)
	}
	return count, nil
}

// MonthlyApprovedCounts buckets approved record counts by month starting at from.
func (r *AttendanceRepository) MonthlyApprovedCounts(ctx context.Context, from time.Time) ([]models.MonthlyAttendanceCount, error) {
	query := `SELECT to_char(date, 'YYYY-MM') AS month_key, COUNT(*) AS cnt
FROM attendance_records
WHERE status = $1 AND date >= $2
GROUP BY to_char(date, 'YYYY-MM')
ORDER BY month_key`
	var counts []models.MonthlyAttendanceCount
	if err := r.db.SelectContext(ctx, &counts, query, models.AttendanceStatusApproved, from); err != nil {
		return nil, fmt.Errorf("monthly approved counts: %w", err)
	}
	return counts, nil
}

// MonthlyCountsFromRecent buckets the most recent approved records by month,
// bounded to limit rows. Used as the analytics fallback of last resort.
func (r *AttendanceRepository) MonthlyCountsFromRecent(ctx context.Context, limit int) ([]models.MonthlyAttendanceCount, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT to_char(date, 'YYYY-MM') AS month_key, COUNT(*) AS cnt
FROM (SELECT date FROM attendance_records WHERE status = $1 ORDER BY date DESC LIMIT $2) recent
GROUP BY to_char(date, 'YYYY-MM')
ORDER BY month_key`
	var counts []models.MonthlyAttendanceCount
	if err := r.db.SelectContext(ctx, &counts, query, models.AttendanceStatusApproved, limit); err != nil {
		return nil, fmt.Errorf("monthly counts from recent: %w", err)
	}
	return counts, nil
}
