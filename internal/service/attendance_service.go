package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	"github.com/98iam/classtrack-api/internal/repository"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

type attendanceLedger interface {
	List(ctx context.Context, filter repository.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	StudentIDsForDate(ctx context.Context, date time.Time) ([]string, error)
	InsertBatch(ctx context.Context, records []models.AttendanceRecord) error
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error)
	MonthlySummary(ctx context.Context, from, to time.Time) ([]models.MonthlyStudentSummary, error)
}

type derivedStatsWriter interface {
	UpdateDerivedStats(ctx context.Context, id string, stats models.DerivedStats) error
}

// CommitListener receives commit lifecycle notifications. Listeners are
// registered explicitly on the engine instead of relying on any ambient
// broadcast mechanism.
type CommitListener interface {
	// AttendanceUpdated fires after any successful or partial commit;
	// listeners should drop cached roster and ledger projections.
	AttendanceUpdated(ctx context.Context, date string)
	// SessionCompleted fires once per committed session and carries the
	// commit date for today's-results displays.
	SessionCompleted(ctx context.Context, date string)
}

// RecomputeFailure attributes a statistics refresh failure to one student
// so it can be retried independently.
type RecomputeFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// CommitResult summarises a committed session.
type CommitResult struct {
	Date              string             `json:"date"`
	Recorded          int                `json:"recorded"`
	RecomputeFailures []RecomputeFailure `json:"recompute_failures,omitempty"`
}

// AttendanceService is the commit/recompute engine: it durably records a
// session's decisions at most once per calendar day and keeps every
// affected student's derived statistics consistent with the full ledger.
type AttendanceService struct {
	ledger    attendanceLedger
	roster    derivedStatsWriter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	listeners []CommitListener
	loc       *time.Location
	now       func() time.Time
}

// NewAttendanceService constructs the engine. The timezone determines which
// calendar day a commit lands on; empty means the server's local zone.
func NewAttendanceService(ledger attendanceLedger, roster derivedStatsWriter, validate *validator.Validate, logger *zap.Logger, timezone string) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.Local
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		} else {
			logger.Warn("invalid attendance timezone, using local", zap.String("timezone", timezone))
		}
	}
	return &AttendanceService{
		ledger:    ledger,
		roster:    roster,
		validator: validate,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// WithMetrics attaches commit instrumentation.
func (s *AttendanceService) WithMetrics(m *MetricsService) *AttendanceService {
	s.metrics = m
	return s
}

// Subscribe registers a listener for commit notifications.
func (s *AttendanceService) Subscribe(l CommitListener) {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
}

// Today returns the current calendar day in the configured timezone,
// normalised to midnight UTC for ledger storage.
func (s *AttendanceService) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Commit records the decision map for today. The sequence is strictly
// ordered: duplicate guard, then batch insert, then per-student recompute.
// The guard and the insert are all-or-nothing; recompute failures are
// partial and reported per student without rolling back the ledger write.
func (s *AttendanceService) Commit(ctx context.Context, decisions map[string]models.AttendanceStatus) (*CommitResult, error) {
	if len(decisions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no decisions to commit")
	}
	for id, status := range decisions {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q for student %s", status, id))
		}
	}

	today := s.Today()
	day := today.Format(models.DateLayout)

	existing, err := s.ledger.StudentIDsForDate(ctx, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerWrite.Code, appErrors.ErrLedgerWrite.Status, "failed to check existing attendance")
	}
	conflicts := 0
	for _, id := range existing {
		if _, ok := decisions[id]; ok {
			conflicts++
		}
	}
	if conflicts > 0 {
		if s.metrics != nil {
			s.metrics.ObserveCommitConflict()
		}
		return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission,
			fmt.Sprintf("attendance has already been taken today for %d student(s), only one submission per day is allowed", conflicts))
	}

	studentIDs := make([]string, 0, len(decisions))
	for id := range decisions {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	records := make([]models.AttendanceRecord, 0, len(decisions))
	for _, id := range studentIDs {
		records = append(records, models.AttendanceRecord{
			StudentID: id,
			Date:      today,
			Status:    decisions[id],
		})
	}
	if err := s.ledger.InsertBatch(ctx, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrLedgerWrite.Code, appErrors.ErrLedgerWrite.Status, "failed to record attendance")
	}

	result := &CommitResult{Date: day, Recorded: len(records)}
	for _, id := range studentIDs {
		if _, err := s.Recompute(ctx, id); err != nil {
			s.logger.Error("stats recompute failed",
				zap.String("student_id", id),
				zap.String("date", day),
				zap.Error(err))
			result.RecomputeFailures = append(result.RecomputeFailures, RecomputeFailure{
				StudentID: id,
				Reason:    err.Error(),
			})
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveCommit(result.Recorded, len(result.RecomputeFailures))
	}
	s.logger.Info("attendance committed",
		zap.String("date", day),
		zap.Int("recorded", result.Recorded),
		zap.Int("recompute_failures", len(result.RecomputeFailures)))

	for _, l := range s.listeners {
		l.AttendanceUpdated(ctx, day)
	}
	for _, l := range s.listeners {
		l.SessionCompleted(ctx, day)
	}

	return result, nil
}

// Recompute refreshes one student's derived statistics from the full
// ledger. Exposed independently so stale stats left by a partial commit
// can be retried per student.
func (s *AttendanceService) Recompute(ctx context.Context, studentID string) (*models.DerivedStats, error) {
	records, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRecompute.Code, appErrors.ErrRecompute.Status, "failed to load ledger history")
	}
	stats := computeDerivedStats(records)
	if err := s.roster.UpdateDerivedStats(ctx, studentID, stats); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRecompute.Code, appErrors.ErrRecompute.Status, "failed to store derived stats")
	}
	return &stats, nil
}

// ListAttendanceRequest narrows ledger list queries.
type ListAttendanceRequest struct {
	Date      string `json:"date"`
	StudentID string `json:"student_id"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}

// List returns ledger rows joined with student details.
func (s *AttendanceService) List(ctx context.Context, req ListAttendanceRequest) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	filter := repository.AttendanceFilter{StudentID: req.StudentID, Page: req.Page, PageSize: req.PageSize}
	if req.Date != "" {
		date, err := time.Parse(models.DateLayout, req.Date)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
		}
		filter.Date = &date
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	rows, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StudentHistory returns the full ledger history for one student.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	records, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger history")
	}
	return records, nil
}

// MonthlySummary aggregates per-student counts for one calendar month.
func (s *AttendanceService) MonthlySummary(ctx context.Context, year, month int) ([]models.MonthlyStudentSummary, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year or month")
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	rows, err := s.ledger.MonthlySummary(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build monthly summary")
	}
	return rows, nil
}
