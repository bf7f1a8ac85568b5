package models

import "time"

// AttendanceStatus represents the lifecycle state of an attendance record.
type AttendanceStatus string

const (
	AttendanceStatusPending  AttendanceStatus = "pending"
	AttendanceStatusApproved AttendanceStatus = "approved"
	AttendanceStatusRejected AttendanceStatus = "rejected"
	AttendanceStatusAbsent   AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPending, AttendanceStatusApproved, AttendanceStatusRejected, AttendanceStatusAbsent:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's attendance claim for one calendar day.
// At most one record exists per (student, date) pair.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Month       int              `db:"month" json:"month"`
	Year        int              `db:"year" json:"year"`
	ApprovedBy  *string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt  *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceFilter defines query filters for listing records.
type AttendanceFilter struct {
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// MonthlyAttendanceCount buckets approved record counts by month key.
type MonthlyAttendanceCount struct {
	MonthKey string `db:"month_key" json:"month_key"`
	Count    int    `db:"cnt" json:"count"`
}

// AttendanceBulkConflict captures rows skipped during bulk insertion.
type AttendanceBulkConflict struct {
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
}
