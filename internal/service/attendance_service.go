package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
	"github.com/arif-dev/tuition-track-api/pkg/jobs"
)

type attendanceRepository interface {
	Create(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	BulkInsert(ctx context.Context, records []models.AttendanceRecord) (int, []models.AttendanceBulkConflict, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Resolve(ctx context.Context, id, approverID string, status models.AttendanceStatus) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

type attendanceUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListStudentsByIDs(ctx context.Context, ids []string) ([]models.StudentBilling, error)
}

// AttendanceService manages the attendance lifecycle: students mark days as
// pending, teachers resolve them to approved or rejected, and approvals
// schedule a fee recalculation for the affected student and month.
type AttendanceService struct {
	records     attendanceRepository
	users       attendanceUserRepository
	statusCache *StudentStatusCache
	queue       jobEnqueuer
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(
	records attendanceRepository,
	users attendanceUserRepository,
	statusCache *StudentStatusCache,
	queue jobEnqueuer,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{
		records:     records,
		users:       users,
		statusCache: statusCache,
		queue:       queue,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Mark records a student's own attendance for one day as pending. Inactive
// students may not mark attendance. Marking the same day twice is a conflict.
func (s *AttendanceService) Mark(ctx context.Context, studentID string, req dto.MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}

	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can mark attendance")
	}
	if !s.isActive(student) {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "inactive students cannot mark attendance")
	}

	record := &models.AttendanceRecord{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		StudentName: student.FullName,
		Date:        date,
		Status:      models.AttendanceStatusPending,
		Month:       int(date.Month()),
		Year:        date.Year(),
	}
	created, err := s.records.Create(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	return created, nil
}

// BulkInsert records attendance for many students on behalf of a teacher.
// Entries land pre-resolved as approved or absent; duplicate (student, date)
// pairs are skipped and reported. Approved insertions schedule fee
// recalculation per affected student and month.
func (s *AttendanceService) BulkInsert(ctx context.Context, teacherID string, req dto.BulkAttendanceRequest) (*dto.BulkAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	studentIDs := make([]string, 0, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := seen[entry.StudentID]; ok {
			continue
		}
		seen[entry.StudentID] = struct{}{}
		studentIDs = append(studentIDs, entry.StudentID)
	}

	students, err := s.users.ListStudentsByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	names := make(map[string]string, len(students))
	for _, student := range students {
		names[student.ID] = student.FullName
	}

	now := s.now().UTC()
	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	conflicts := make([]models.AttendanceBulkConflict, 0)
	recalcKeys := make(map[string]StudentRecalcPayload)

	for _, entry := range req.Entries {
		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
		}
		name, ok := names[entry.StudentID]
		if !ok {
			conflicts = append(conflicts, models.AttendanceBulkConflict{
				StudentID: entry.StudentID,
				Date:      date,
				Reason:    "student not found",
			})
			continue
		}

		record := models.AttendanceRecord{
			ID:          uuid.NewString(),
			StudentID:   entry.StudentID,
			StudentName: name,
			Date:        date,
			Status:      models.AttendanceStatus(entry.Status),
			Month:       int(date.Month()),
			Year:        date.Year(),
		}
		if record.Status == models.AttendanceStatusApproved {
			record.ApprovedBy = &teacherID
			approvedAt := now
			record.ApprovedAt = &approvedAt

			payload := StudentRecalcPayload{StudentID: entry.StudentID, MonthKey: models.MonthKey(date)}
			recalcKeys[payload.StudentID+payload.MonthKey] = payload
		}
		records = append(records, record)
	}

	inserted, insertConflicts, err := s.records.BulkInsert(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert attendance")
	}
	conflicts = append(conflicts, insertConflicts...)

	for _, payload := range recalcKeys {
		s.enqueueRecalc(payload)
	}

	return &dto.BulkAttendanceResponse{Inserted: inserted, Conflicts: conflicts}, nil
}

// Resolve moves a pending record to approved or rejected. Approval schedules
// a fee recalculation for the student's month. Resolving a record twice is a
// conflict.
func (s *AttendanceService) Resolve(ctx context.Context, id, approverID string, approve bool) (*models.AttendanceRecord, error) {
	status := models.AttendanceStatusRejected
	if approve {
		status = models.AttendanceStatusApproved
	}

	record, err := s.records.Resolve(ctx, id, approverID, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either missing or already resolved; disambiguate for the caller.
			if _, findErr := s.records.FindByID(ctx, id); findErr != nil {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance record is already resolved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve attendance")
	}

	if approve {
		s.enqueueRecalc(StudentRecalcPayload{
			StudentID: record.StudentID,
			MonthKey:  models.MonthKey(record.Date),
		})
	}
	return record, nil
}

// List returns attendance records matching the filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

func (s *AttendanceService) isActive(student *models.User) bool {
	if s.statusCache != nil {
		if active, ok := s.statusCache.Get(student.ID); ok {
			return active
		}
		s.statusCache.Set(student.ID, student.Active)
	}
	return student.Active
}

func (s *AttendanceService) enqueueRecalc(payload StudentRecalcPayload) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeStudentRecalc,
		Payload: payload,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue recalculation",
			zap.String("student_id", payload.StudentID),
			zap.String("month", payload.MonthKey),
			zap.Error(err))
	}
}
