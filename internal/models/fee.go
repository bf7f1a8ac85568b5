package models

import (
	"database/sql"
	"math"
	"time"
)

// DueStatus represents the payment state of a monthly due.
type DueStatus string

const (
	DueStatusUnpaid DueStatus = "unpaid"
	DueStatusPaid   DueStatus = "paid"
)

// MonthlyDue is one student's computed fee obligation for one calendar month.
// Due, ApprovedDays and DailyRate are derived from attendance at calculation
// time; Status, PaymentDate and AmountPaid are sticky payment fields carried
// forward across recalculations.
type MonthlyDue struct {
	StudentID      string     `db:"student_id" json:"student_id"`
	MonthKey       string     `db:"month_key" json:"month_key"`
	Due            float64    `db:"due" json:"due"`
	ApprovedDays   int        `db:"approved_days" json:"approved_days"`
	DailyRate      float64    `db:"daily_rate" json:"daily_rate"`
	Status         DueStatus  `db:"status" json:"status"`
	PaymentDate    *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	AmountPaid     *float64   `db:"amount_paid" json:"amount_paid,omitempty"`
	LastCalculated time.Time  `db:"last_calculated" json:"last_calculated"`
}

// MonthlyDueRow is the raw persistence shape. Rows written by the legacy
// system carry only a bare amount in legacy_amount with every structured
// column NULL; Normalize folds both shapes into a canonical MonthlyDue.
type MonthlyDueRow struct {
	StudentID      string          `db:"student_id"`
	MonthKey       string          `db:"month_key"`
	Due            sql.NullFloat64 `db:"due"`
	ApprovedDays   sql.NullInt64   `db:"approved_days"`
	DailyRate      sql.NullFloat64 `db:"daily_rate"`
	Status         sql.NullString  `db:"status"`
	PaymentDate    sql.NullTime    `db:"payment_date"`
	AmountPaid     sql.NullFloat64 `db:"amount_paid"`
	LastCalculated sql.NullTime    `db:"last_calculated"`
	LegacyAmount   sql.NullFloat64 `db:"legacy_amount"`
}

// Normalize converts a stored row into the canonical due shape.
func (r MonthlyDueRow) Normalize() MonthlyDue {
	due := MonthlyDue{
		StudentID: r.StudentID,
		MonthKey:  r.MonthKey,
		Status:    DueStatusUnpaid,
	}
	// A legacy row only lacks the derived columns; payment state recorded
	// against it since (MarkPaid leaves due NULL) must still surface.
	if r.Due.Valid {
		due.Due = r.Due.Float64
	} else if r.LegacyAmount.Valid {
		due.Due = Round2(r.LegacyAmount.Float64)
	}
	due.ApprovedDays = int(r.ApprovedDays.Int64)
	due.DailyRate = r.DailyRate.Float64
	if r.Status.Valid && DueStatus(r.Status.String) == DueStatusPaid {
		due.Status = DueStatusPaid
	}
	if r.PaymentDate.Valid {
		t := r.PaymentDate.Time
		due.PaymentDate = &t
	}
	if r.AmountPaid.Valid {
		v := r.AmountPaid.Float64
		due.AmountPaid = &v
	}
	if r.LastCalculated.Valid {
		due.LastCalculated = r.LastCalculated.Time
	}
	return due
}

// RecalcProgress reports recalculation progress for UI display.
type RecalcProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// MonthKeyLayout is the canonical YYYY-MM key format.
const MonthKeyLayout = "2006-01"

// MonthKey formats a time into its YYYY-MM key.
func MonthKey(t time.Time) string {
	return t.Format(MonthKeyLayout)
}

// ParseMonthKey parses a YYYY-MM key into the first instant of that month (UTC).
func ParseMonthKey(key string) (time.Time, error) {
	return time.Parse(MonthKeyLayout, key)
}

// MonthBounds returns the first and last day of the month containing t, in UTC.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// DaysInMonth returns the number of calendar days in the month containing t.
func DaysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
