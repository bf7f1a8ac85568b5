package dto

import "github.com/arif-dev/tuition-track-api/internal/models"

// MarkAttendanceRequest is a student's self-reported attendance for one day.
type MarkAttendanceRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// BulkAttendanceEntry is one row of a teacher bulk insert.
type BulkAttendanceEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=approved absent"`
}

// BulkAttendanceRequest inserts many records at once on behalf of students.
type BulkAttendanceRequest struct {
	Entries []BulkAttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// BulkAttendanceResponse reports inserted and skipped entries.
type BulkAttendanceResponse struct {
	Inserted  int                             `json:"inserted"`
	Conflicts []models.AttendanceBulkConflict `json:"conflicts,omitempty"`
}
