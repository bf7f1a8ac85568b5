package dto

import "github.com/arif-dev/tuition-track-api/internal/models"

// Series source identifiers, ordered by preference.
const (
	SeriesSourceRollup           = "rollup"
	SeriesSourceTeacherSummaries = "teacher_summaries"
	SeriesSourceAttendanceScan   = "attendance_scan"
)

// MonthlySeriesResponse carries a month-bucketed series and where it came from.
type MonthlySeriesResponse struct {
	Points []models.MonthlyPoint `json:"points"`
	Source string                `json:"source"`
}

// BackfillResponse reports how many months were aggregated.
type BackfillResponse struct {
	MonthsProcessed int      `json:"months_processed"`
	MonthKeys       []string `json:"month_keys"`
}
