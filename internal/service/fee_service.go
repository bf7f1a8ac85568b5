package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
	"github.com/arif-dev/tuition-track-api/pkg/export"
	"github.com/arif-dev/tuition-track-api/pkg/jobs"
)

// Background job types dispatched through the queue.
const (
	JobTypeStudentRecalc    = "fee.recalculate_student"
	JobTypeRevenueRollup    = "rollup.revenue"
	JobTypeAttendanceRollup = "rollup.attendance"
)

// StudentRecalcPayload targets one student and month for recalculation.
type StudentRecalcPayload struct {
	StudentID string `json:"student_id"`
	MonthKey  string `json:"month_key"`
}

// RollupPayload targets one month for aggregation.
type RollupPayload struct {
	MonthKey string `json:"month_key"`
}

type feeAttendanceRepository interface {
	CountApprovedInRange(ctx context.Context, studentID string, from, to time.Time) (int, error)
}

type feeStudentRepository interface {
	ListActiveStudents(ctx context.Context) ([]models.StudentBilling, error)
	ListStudentsByIDs(ctx context.Context, ids []string) ([]models.StudentBilling, error)
}

type feeDueRepository interface {
	GetDue(ctx context.Context, studentID, monthKey string) (*models.MonthlyDue, error)
	ListDuesByStudent(ctx context.Context, studentID string) ([]models.MonthlyDue, error)
	UpsertCalculated(ctx context.Context, due models.MonthlyDue) error
	MarkPaid(ctx context.Context, studentID, monthKey string, amount *float64, paidAt time.Time) (*models.MonthlyDue, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ProgressFunc receives recalculation progress after every batch.
type ProgressFunc func(models.RecalcProgress)

// FeeServiceParams groups constructor dependencies.
type FeeServiceParams struct {
	Attendance    feeAttendanceRepository
	Students      feeStudentRepository
	Dues          feeDueRepository
	Queue         jobEnqueuer
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	BatchSize     int
	ReceiptFooter string
}

// FeeService recomputes monthly dues from approved attendance.
//
// Recalculation is idempotent: a student's due, approved day count and daily
// rate are pure functions of attendance state and the student's monthly fee,
// so re-running with unchanged attendance is a no-op. Payment fields are
// never written by recalculation.
type FeeService struct {
	attendance    feeAttendanceRepository
	students      feeStudentRepository
	dues          feeDueRepository
	queue         jobEnqueuer
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	receipts      *export.ReceiptExporter
	batchSize     int
	receiptFooter string
	now           func() time.Time
}

// NewFeeService constructs a FeeService with sane defaults.
func NewFeeService(params FeeServiceParams) *FeeService {
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{
		attendance:    params.Attendance,
		students:      params.Students,
		dues:          params.Dues,
		queue:         params.Queue,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        logger,
		receipts:      export.NewReceiptExporter(),
		batchSize:     batchSize,
		receiptFooter: params.ReceiptFooter,
		now:           time.Now,
	}
}

// Recalculate recomputes dues for the requested month. When no student ids
// are given every active student is processed; explicitly listed students
// are processed even when inactive. Per-student failures are logged and
// counted without aborting the run.
func (s *FeeService) Recalculate(ctx context.Context, req dto.RecalculateRequest, progress ProgressFunc) (*dto.RecalculateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recalculation payload")
	}
	month, err := models.ParseMonthKey(req.Month)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}
	monthKey := models.MonthKey(month)

	students, skipped, err := s.targetStudents(ctx, req.StudentIDs)
	if err != nil {
		return nil, err
	}

	start := s.now()
	total := len(students)
	processed := 0
	failed := 0
	var mu sync.Mutex

	for batchStart := 0; batchStart < total; batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > total {
			batchEnd = total
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, student := range students[batchStart:batchEnd] {
			student := student
			g.Go(func() error {
				if err := s.recalculateOne(gctx, student, month); err != nil {
					s.logger.Error("student recalculation failed",
						zap.String("student_id", student.ID),
						zap.String("month", monthKey),
						zap.Error(err))
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				processed++
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "recalculation aborted")
		}

		if progress != nil {
			progress(models.RecalcProgress{Current: batchEnd, Total: total})
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveRecalc(s.now().Sub(start), processed, failed)
	}

	return &dto.RecalculateResponse{
		MonthKey:  monthKey,
		Processed: processed,
		Skipped:   skipped,
		Failed:    failed,
		Progress:  models.RecalcProgress{Current: total, Total: total},
	}, nil
}

// RecalculateStudent recomputes a single student's due for one month. Used
// by the approval-triggered background job; the student is processed even
// when inactive since it was explicitly targeted.
func (s *FeeService) RecalculateStudent(ctx context.Context, studentID, monthKey string) error {
	month, err := models.ParseMonthKey(monthKey)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}
	students, err := s.students.ListStudentsByIDs(ctx, []string{studentID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if len(students) == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return s.recalculateOne(ctx, students[0], month)
}

func (s *FeeService) recalculateOne(ctx context.Context, student models.StudentBilling, month time.Time) error {
	first, last := models.MonthBounds(month)
	approvedDays, err := s.attendance.CountApprovedInRange(ctx, student.ID, first, last)
	if err != nil {
		return fmt.Errorf("count approved days: %w", err)
	}

	days := models.DaysInMonth(month)
	rate := student.MonthlyFee / float64(days)
	// The rate is stored unrounded so the due stays exact across
	// recalculations; only the due itself is a rounded monetary amount.
	due := models.MonthlyDue{
		StudentID:      student.ID,
		MonthKey:       models.MonthKey(month),
		Due:            models.Round2(float64(approvedDays) * rate),
		ApprovedDays:   approvedDays,
		DailyRate:      rate,
		LastCalculated: s.now().UTC(),
	}
	if err := s.dues.UpsertCalculated(ctx, due); err != nil {
		return fmt.Errorf("save due: %w", err)
	}
	return nil
}

func (s *FeeService) targetStudents(ctx context.Context, ids []string) ([]models.StudentBilling, int, error) {
	if len(ids) == 0 {
		students, err := s.students.ListActiveStudents(ctx)
		if err != nil {
			return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active students")
		}
		return students, 0, nil
	}

	students, err := s.students.ListStudentsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	skipped := len(ids) - len(students)
	if skipped > 0 {
		s.logger.Warn("some requested students were not found", zap.Int("skipped", skipped))
	}
	for _, student := range students {
		if !student.Active {
			s.logger.Info("recalculating explicitly targeted inactive student", zap.String("student_id", student.ID))
		}
	}
	return students, skipped, nil
}

// StudentFees returns every due recorded for a student.
func (s *FeeService) StudentFees(ctx context.Context, studentID string) (*dto.StudentFeesResponse, error) {
	dues, err := s.dues.ListDuesByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dues")
	}
	return &dto.StudentFeesResponse{StudentID: studentID, Dues: dues}, nil
}

// MarkPaid flips a due to paid and schedules revenue aggregation for the
// affected month.
func (s *FeeService) MarkPaid(ctx context.Context, studentID, monthKey string, req dto.PayRequest) (*dto.PaymentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "amount must be greater than zero")
	}
	if _, err := models.ParseMonthKey(monthKey); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid month, expected YYYY-MM")
	}

	due, err := s.dues.MarkPaid(ctx, studentID, monthKey, req.Amount, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.enqueueRollups(monthKey)

	return &dto.PaymentResponse{Due: *due}, nil
}

// Receipt renders a PDF receipt for a paid due.
func (s *FeeService) Receipt(ctx context.Context, studentID, monthKey string) ([]byte, error) {
	due, err := s.dues.GetDue(ctx, studentID, monthKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoDueRecorded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load due")
	}
	if due.Status != models.DueStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "due is not paid yet")
	}

	students, err := s.students.ListStudentsByIDs(ctx, []string{studentID})
	if err != nil || len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	receipt := export.Receipt{
		ReceiptNo:   fmt.Sprintf("%s-%s", monthKey, studentID),
		StudentName: students[0].FullName,
		MonthKey:    monthKey,
		DueAmount:   due.Due,
		Footer:      s.receiptFooter,
	}
	if due.AmountPaid != nil {
		receipt.AmountPaid = *due.AmountPaid
	}
	if due.PaymentDate != nil {
		receipt.PaymentDate = due.PaymentDate.Format("2006-01-02")
	}

	payload, err := s.receipts.Render(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return payload, nil
}

func (s *FeeService) enqueueRollups(monthKey string) {
	if s.queue == nil {
		return
	}
	for _, jobType := range []string{JobTypeRevenueRollup, JobTypeAttendanceRollup} {
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    jobType,
			Payload: RollupPayload{MonthKey: monthKey},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue rollup job",
				zap.String("type", jobType),
				zap.String("month", monthKey),
				zap.Error(err))
		}
	}
}
