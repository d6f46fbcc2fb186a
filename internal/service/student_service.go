package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

const rosterActiveCacheKey = "roster:active"

// defaultArchiveReason mirrors the reason recorded when none is given.
const defaultArchiveReason = "Student left the class"

type studentRepository interface {
	ListActive(ctx context.Context) ([]models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByRoll(ctx context.Context, roll string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Archive(ctx context.Context, id string, reason string) error
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	UpdateDerivedStats(ctx context.Context, id string, stats models.DerivedStats) error
	ListAlerts(ctx context.Context, minStreak int) ([]models.Student, error)
}

type ledgerMaintainer interface {
	DeleteByStudent(ctx context.Context, studentID string) (int64, error)
	Verification(ctx context.Context, studentID string) (*models.LedgerVerification, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	Name       string  `json:"name" validate:"required"`
	RollNumber string  `json:"roll_number" validate:"required"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email" validate:"omitempty,email"`
}

// UpdateStudentRequest holds payload for editing students.
type UpdateStudentRequest struct {
	Name       string  `json:"name" validate:"required"`
	RollNumber string  `json:"roll_number" validate:"required"`
	Phone      *string `json:"phone"`
	Email      *string `json:"email" validate:"omitempty,email"`
}

// ArchiveStudentRequest carries the optional archival reason.
type ArchiveStudentRequest struct {
	Reason string `json:"reason"`
}

// StudentService handles roster use-cases. Archival is non-destructive:
// archived students keep all their ledger history and derived counters.
type StudentService struct {
	repo      studentRepository
	ledger    ledgerMaintainer
	cache     rosterCache
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cacheTTL  time.Duration
	minStreak int
}

// NewStudentService constructs the roster service.
func NewStudentService(repo studentRepository, ledger ledgerMaintainer, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		ledger:    ledger,
		validator: validate,
		logger:    logger,
		cacheTTL:  5 * time.Minute,
		minStreak: 1,
	}
}

// WithCache attaches a roster cache with the given TTL.
func (s *StudentService) WithCache(cache rosterCache, ttl time.Duration) *StudentService {
	s.cache = cache
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// WithMetrics attaches cache instrumentation.
func (s *StudentService) WithMetrics(m *MetricsService) *StudentService {
	s.metrics = m
	return s
}

// WithAlertThreshold sets the absence streak at which students appear in
// the alerts view.
func (s *StudentService) WithAlertThreshold(minStreak int) *StudentService {
	if minStreak > 0 {
		s.minStreak = minStreak
	}
	return s
}

// ListActive returns the active roster in roll order, cached briefly since
// the session and alert views hit it repeatedly.
func (s *StudentService) ListActive(ctx context.Context) ([]models.Student, error) {
	if s.cache != nil {
		var cached []models.Student
		if err := s.cache.Get(ctx, rosterActiveCacheKey, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.ObserveCacheHit()
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.ObserveCacheMiss()
		}
	}

	students, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, rosterActiveCacheKey, students, s.cacheTTL); err != nil {
			s.logger.Warn("roster cache write failed", zap.Error(err))
		}
	}
	return students, nil
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns one student, archived or not.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new active student with zeroed counters.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByRoll(ctx, req.RollNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this roll number already exists")
	}
	student := &models.Student{
		Name:       req.Name,
		RollNumber: req.RollNumber,
		Phone:      req.Phone,
		Email:      req.Email,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.invalidateRoster(ctx)
	return student, nil
}

// Update modifies a student's descriptive fields.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByRoll(ctx, req.RollNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate roll number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this roll number already exists")
	}
	student.Name = req.Name
	student.RollNumber = req.RollNumber
	student.Phone = req.Phone
	student.Email = req.Email
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.invalidateRoster(ctx)
	return student, nil
}

// Archive soft-deletes a student. History stays intact and the student can
// be restored later.
func (s *StudentService) Archive(ctx context.Context, id string, reason string) (*models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = defaultArchiveReason
	}
	if err := s.repo.Archive(ctx, id, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive student")
	}
	s.invalidateRoster(ctx)
	return s.Get(ctx, id)
}

// Restore reactivates an archived student.
func (s *StudentService) Restore(ctx context.Context, id string) (*models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore student")
	}
	s.invalidateRoster(ctx)
	return s.Get(ctx, id)
}

// Delete permanently removes a student and every ledger row they own. This
// is the only operation that deletes attendance history.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	removed, err := s.ledger.DeleteByStudent(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance history")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student permanently deleted",
		zap.String("student_id", id),
		zap.Int64("ledger_rows_removed", removed))
	s.invalidateRoster(ctx)
	return nil
}

// Verify reports what ledger history exists for a student, used to confirm
// data preservation before archival or deletion.
func (s *StudentService) Verify(ctx context.Context, id string) (*models.LedgerVerification, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	verification, err := s.ledger.Verification(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify ledger history")
	}
	return verification, nil
}

// ResetStats zeroes a student's derived counters. Besides the recompute
// engine this is the only writer of those fields.
func (s *StudentService) ResetStats(ctx context.Context, id string) (*models.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDerivedStats(ctx, id, models.DerivedStats{}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset stats")
	}
	s.invalidateRoster(ctx)
	return s.Get(ctx, id)
}

// Alerts returns active students whose absence streak has reached the
// configured threshold.
func (s *StudentService) Alerts(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.ListAlerts(ctx, s.minStreak)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absence alerts")
	}
	return students, nil
}

func (s *StudentService) invalidateRoster(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, rosterCachePattern); err != nil {
		s.logger.Warn("roster cache invalidation failed", zap.Error(err))
	}
}
