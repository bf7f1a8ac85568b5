package dto

import "github.com/arif-dev/tuition-track-api/internal/models"

// RecalculateRequest targets a month and optionally a subset of students.
// When StudentIDs is empty every active student is recalculated.
type RecalculateRequest struct {
	StudentIDs []string `json:"student_ids"`
	Month      string   `json:"month" validate:"required"`
}

// RecalculateResponse summarises a recalculation run.
type RecalculateResponse struct {
	MonthKey  string                `json:"month_key"`
	Processed int                   `json:"processed"`
	Skipped   int                   `json:"skipped"`
	Failed    int                   `json:"failed"`
	Progress  models.RecalcProgress `json:"progress"`
}

// StudentFeesResponse lists a student's dues keyed by month.
type StudentFeesResponse struct {
	StudentID string              `json:"student_id"`
	Dues      []models.MonthlyDue `json:"dues"`
}

// PayRequest marks a monthly due as paid. Amount defaults to the due amount.
type PayRequest struct {
	Amount *float64 `json:"amount" validate:"omitempty,gt=0"`
}

// PaymentResponse returns the paid due.
type PaymentResponse struct {
	Due models.MonthlyDue `json:"due"`
}
