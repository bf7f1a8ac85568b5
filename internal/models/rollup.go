package models

import "time"

// RevenueRollup is the platform-wide denormalized revenue total for one month.
// Revenue equals the sum of amount_paid over all paid dues at the last
// recomputation, never maintained incrementally.
type RevenueRollup struct {
	MonthKey     string    `db:"month_key" json:"month_key"`
	Revenue      float64   `db:"revenue" json:"revenue"`
	PaidStudents int       `db:"paid_students" json:"paid_students"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceRollup is the platform-wide monthly count of approved records.
type AttendanceRollup struct {
	MonthKey      string    `db:"month_key" json:"month_key"`
	ApprovedCount int       `db:"approved_count" json:"approved_count"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherMonthlySummary mirrors the platform revenue under each teacher.
type TeacherMonthlySummary struct {
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	MonthKey  string    `db:"month_key" json:"month_key"`
	Revenue   float64   `db:"revenue" json:"revenue"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MonthlyPoint is a single month bucket in an analytics series.
type MonthlyPoint struct {
	MonthKey string  `json:"month_key"`
	Value    float64 `json:"value"`
}
