package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arif-dev/tuition-track-api/internal/dto"
	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
	"github.com/arif-dev/tuition-track-api/pkg/jobs"
)

type fakeFeeAttendance struct {
	approvedDays map[string]int
	errFor       map[string]error
}

func (f *fakeFeeAttendance) CountApprovedInRange(_ context.Context, studentID string, _, _ time.Time) (int, error) {
	if err := f.errFor[studentID]; err != nil {
		return 0, err
	}
	return f.approvedDays[studentID], nil
}

type fakeFeeStudents struct {
	active []models.StudentBilling
	byID   map[string]models.StudentBilling
}

func (f *fakeFeeStudents) ListActiveStudents(context.Context) ([]models.StudentBilling, error) {
	return f.active, nil
}

func (f *fakeFeeStudents) ListStudentsByIDs(_ context.Context, ids []string) ([]models.StudentBilling, error) {
	out := make([]models.StudentBilling, 0, len(ids))
	for _, id := range ids {
		if s, ok := f.byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeFeeDues struct {
	mu       sync.Mutex
	upserts  []models.MonthlyDue
	dues     map[string]*models.MonthlyDue
	paidErr  error
	paidDue  *models.MonthlyDue
	paidArgs []string
}

func (f *fakeFeeDues) GetDue(_ context.Context, studentID, monthKey string) (*models.MonthlyDue, error) {
	if due, ok := f.dues[studentID+monthKey]; ok {
		return due, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeFeeDues) ListDuesByStudent(_ context.Context, studentID string) ([]models.MonthlyDue, error) {
	out := []models.MonthlyDue{}
	for _, due := range f.dues {
		if due.StudentID == studentID {
			out = append(out, *due)
		}
	}
	return out, nil
}

func (f *fakeFeeDues) UpsertCalculated(_ context.Context, due models.MonthlyDue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, due)
	return nil
}

func (f *fakeFeeDues) MarkPaid(_ context.Context, studentID, monthKey string, _ *float64, _ time.Time) (*models.MonthlyDue, error) {
	f.paidArgs = append(f.paidArgs, studentID+"/"+monthKey)
	if f.paidErr != nil {
		return nil, f.paidErr
	}
	return f.paidDue, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestFeeService(att *fakeFeeAttendance, students *fakeFeeStudents, dues *fakeFeeDues, queue *fakeQueue) *FeeService {
	return NewFeeService(FeeServiceParams{
		Attendance: att,
		Students:   students,
		Dues:       dues,
		Queue:      queue,
		BatchSize:  2,
	})
}

func TestFeeServiceRecalculateComputesDueFromUnroundedRate(t *testing.T) {
	att := &fakeFeeAttendance{approvedDays: map[string]int{"s1": 10}}
	students := &fakeFeeStudents{active: []models.StudentBilling{{ID: "s1", FullName: "Student One", MonthlyFee: 3000, Active: true}}}
	dues := &fakeFeeDues{}
	svc := newTestFeeService(att, students, dues, &fakeQueue{})

	res, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-09"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)

	require.Len(t, dues.upserts, 1)
	due := dues.upserts[0]
	// September has 30 days: 10 * 3000/30 = 1000.00
	assert.Equal(t, 1000.0, due.Due)
	assert.Equal(t, 10, due.ApprovedDays)
	assert.Equal(t, 100.0, due.DailyRate)
	assert.Equal(t, "2025-09", due.MonthKey)
}

func TestFeeServiceRecalculateRoundsHalfUpAtTheEnd(t *testing.T) {
	att := &fakeFeeAttendance{approvedDays: map[string]int{"s1": 7}}
	students := &fakeFeeStudents{active: []models.StudentBilling{{ID: "s1", MonthlyFee: 1000, Active: true}}}
	dues := &fakeFeeDues{}
	svc := newTestFeeService(att, students, dues, &fakeQueue{})

	_, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-08"}, nil)
	require.NoError(t, err)

	require.Len(t, dues.upserts, 1)
	// August has 31 days: 7 * 1000/31 = 225.806..., rounded once at the end.
	// The rate itself stays unrounded.
	assert.Equal(t, 225.81, dues.upserts[0].Due)
	assert.InDelta(t, 1000.0/31.0, dues.upserts[0].DailyRate, 1e-9)
}

func TestFeeServiceRecalculateIsIdempotent(t *testing.T) {
	att := &fakeFeeAttendance{approvedDays: map[string]int{"s1": 12}}
	students := &fakeFeeStudents{active: []models.StudentBilling{{ID: "s1", MonthlyFee: 2400, Active: true}}}
	dues := &fakeFeeDues{}
	svc := newTestFeeService(att, students, dues, &fakeQueue{})

	for i := 0; i < 2; i++ {
		_, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-09"}, nil)
		require.NoError(t, err)
	}

	require.Len(t, dues.upserts, 2)
	assert.Equal(t, dues.upserts[0].Due, dues.upserts[1].Due)
	assert.Equal(t, dues.upserts[0].ApprovedDays, dues.upserts[1].ApprovedDays)
	assert.Equal(t, dues.upserts[0].DailyRate, dues.upserts[1].DailyRate)
}

func TestFeeServiceRecalculateProcessesExplicitInactiveStudents(t *testing.T) {
	att := &fakeFeeAttendance{approvedDays: map[string]int{"s2": 5}}
	students := &fakeFeeStudents{
		active: []models.StudentBilling{{ID: "s1", MonthlyFee: 3000, Active: true}},
		byID: map[string]models.StudentBilling{
			"s2": {ID: "s2", MonthlyFee: 3000, Active: false},
		},
	}
	dues := &fakeFeeDues{}
	svc := newTestFeeService(att, students, dues, &fakeQueue{})

	res, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-09", StudentIDs: []string{"s2", "missing"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)

	require.Len(t, dues.upserts, 1)
	assert.Equal(t, "s2", dues.upserts[0].StudentID)
}

func TestFeeServiceRecalculateIsolatesPerStudentFailures(t *testing.T) {
	att := &fakeFeeAttendance{
		approvedDays: map[string]int{"s1": 10, "s3": 4},
		errFor:       map[string]error{"s2": errors.New("boom")},
	}
	students := &fakeFeeStudents{active: []models.StudentBilling{
		{ID: "s1", MonthlyFee: 3000, Active: true},
		{ID: "s2", MonthlyFee: 3000, Active: true},
		{ID: "s3", MonthlyFee: 3000, Active: true},
	}}
	dues := &fakeFeeDues{}
	svc := newTestFeeService(att, students, dues, &fakeQueue{})

	res, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-09"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, dues.upserts, 2)
}

func TestFeeServiceRecalculateReportsProgressPerBatch(t *testing.T) {
	active := make([]models.StudentBilling, 5)
	approved := map[string]int{}
	for i := range active {
		id := string(rune('a' + i))
		active[i] = models.StudentBilling{ID: id, MonthlyFee: 3000, Active: true}
		approved[id] = i
	}
	att := &fakeFeeAttendance{approvedDays: approved}
	students := &fakeFeeStudents{active: active}
	svc := newTestFeeService(att, students, &fakeFeeDues{}, &fakeQueue{})

	var progress []models.RecalcProgress
	_, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "2025-09"}, func(p models.RecalcProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.Len(t, progress, 3)
	assert.Equal(t, models.RecalcProgress{Current: 2, Total: 5}, progress[0])
	assert.Equal(t, models.RecalcProgress{Current: 4, Total: 5}, progress[1])
	assert.Equal(t, models.RecalcProgress{Current: 5, Total: 5}, progress[2])
}

func TestFeeServiceRecalculateRejectsBadMonth(t *testing.T) {
	svc := newTestFeeService(&fakeFeeAttendance{}, &fakeFeeStudents{}, &fakeFeeDues{}, &fakeQueue{})

	_, err := svc.Recalculate(context.Background(), dto.RecalculateRequest{Month: "September 2025"}, nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFeeServiceMarkPaidEnqueuesRollups(t *testing.T) {
	paid := &models.MonthlyDue{StudentID: "s1", MonthKey: "2025-09", Due: 1000, Status: models.DueStatusPaid}
	dues := &fakeFeeDues{paidDue: paid}
	queue := &fakeQueue{}
	svc := newTestFeeService(&fakeFeeAttendance{}, &fakeFeeStudents{}, dues, queue)

	res, err := svc.MarkPaid(context.Background(), "s1", "2025-09", dto.PayRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.DueStatusPaid, res.Due.Status)

	require.Len(t, queue.jobs, 2)
	types := []string{queue.jobs[0].Type, queue.jobs[1].Type}
	assert.Contains(t, types, JobTypeRevenueRollup)
	assert.Contains(t, types, JobTypeAttendanceRollup)
}

func TestFeeServiceMarkPaidRejectsNonPositiveAmount(t *testing.T) {
	dues := &fakeFeeDues{}
	queue := &fakeQueue{}
	svc := newTestFeeService(&fakeFeeAttendance{}, &fakeFeeStudents{}, dues, queue)

	for _, amount := range []float64{-50, 0} {
		amount := amount
		_, err := svc.MarkPaid(context.Background(), "s1", "2025-09", dto.PayRequest{Amount: &amount})
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	}
	assert.Empty(t, dues.paidArgs, "no payment may be recorded for a rejected amount")
	assert.Empty(t, queue.jobs)
}

func TestFeeServiceMarkPaidPropagatesAlreadyPaid(t *testing.T) {
	dues := &fakeFeeDues{paidErr: appErrors.ErrAlreadyPaid}
	queue := &fakeQueue{}
	svc := newTestFeeService(&fakeFeeAttendance{}, &fakeFeeStudents{}, dues, queue)

	_, err := svc.MarkPaid(context.Background(), "s1", "2025-09", dto.PayRequest{})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPaid)
	assert.Empty(t, queue.jobs)
}

func TestFeeServiceReceiptRequiresPaidDue(t *testing.T) {
	dues := &fakeFeeDues{dues: map[string]*models.MonthlyDue{
		"s12025-09": {StudentID: "s1", MonthKey: "2025-09", Due: 1000, Status: models.DueStatusUnpaid},
	}}
	students := &fakeFeeStudents{byID: map[string]models.StudentBilling{"s1": {ID: "s1", FullName: "Student One"}}}
	svc := newTestFeeService(&fakeFeeAttendance{}, students, dues, &fakeQueue{})

	_, err := svc.Receipt(context.Background(), "s1", "2025-09")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestFeeServiceReceiptRendersPDF(t *testing.T) {
	paidAt := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	amount := 1000.0
	dues := &fakeFeeDues{dues: map[string]*models.MonthlyDue{
		"s12025-09": {
			StudentID:   "s1",
			MonthKey:    "2025-09",
			Due:         1000,
			Status:      models.DueStatusPaid,
			PaymentDate: &paidAt,
			AmountPaid:  &amount,
		},
	}}
	students := &fakeFeeStudents{byID: map[string]models.StudentBilling{"s1": {ID: "s1", FullName: "Student One"}}}
	svc := newTestFeeService(&fakeFeeAttendance{}, students, dues, &fakeQueue{})

	payload, err := svc.Receipt(context.Background(), "s1", "2025-09")
	require.NoError(t, err)
	assert.True(t, len(payload) > 0)
	assert.Equal(t, "%PDF", string(payload[:4]))
}
