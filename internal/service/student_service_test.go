package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

type mockStudentRepo struct {
	students     map[string]models.Student
	existsByRoll map[string]string
	archived     map[string]string
	restored     []string
	deleted      []string
	statsWrites  map[string]models.DerivedStats
	alerts       []models.Student
	lastStreak   int
	listActive   int
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students:     make(map[string]models.Student),
		existsByRoll: make(map[string]string),
		archived:     make(map[string]string),
		statsWrites:  make(map[string]models.DerivedStats),
	}
}

func (m *mockStudentRepo) ListActive(ctx context.Context) ([]models.Student, error) {
	m.listActive++
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByRoll(ctx context.Context, roll string, excludeID string) (bool, error) {
	if id, ok := m.existsByRoll[roll]; ok {
		if excludeID == "" || id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	m.existsByRoll[student.RollNumber] = student.ID
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Archive(ctx context.Context, id string, reason string) error {
	m.archived[id] = reason
	if s, ok := m.students[id]; ok {
		s.Active = false
		m.students[id] = s
	}
	return nil
}

func (m *mockStudentRepo) Restore(ctx context.Context, id string) error {
	m.restored = append(m.restored, id)
	if s, ok := m.students[id]; ok {
		s.Active = true
		m.students[id] = s
	}
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.students, id)
	return nil
}

func (m *mockStudentRepo) UpdateDerivedStats(ctx context.Context, id string, stats models.DerivedStats) error {
	m.statsWrites[id] = stats
	if s, ok := m.students[id]; ok {
		s.DerivedStats = stats
		m.students[id] = s
	}
	return nil
}

func (m *mockStudentRepo) ListAlerts(ctx context.Context, minStreak int) ([]models.Student, error) {
	m.lastStreak = minStreak
	return m.alerts, nil
}

type mockLedgerMaintainer struct {
	removed      map[string]int64
	verification *models.LedgerVerification
}

func (m *mockLedgerMaintainer) DeleteByStudent(ctx context.Context, studentID string) (int64, error) {
	if m.removed == nil {
		m.removed = make(map[string]int64)
	}
	m.removed[studentID] = 12
	return 12, nil
}

func (m *mockLedgerMaintainer) Verification(ctx context.Context, studentID string) (*models.LedgerVerification, error) {
	return m.verification, nil
}

type fakeCache struct {
	values  map[string][]byte
	deletes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.deletes = append(c.deletes, pattern)
	c.values = make(map[string][]byte)
	return nil
}

func newStudentService(repo *mockStudentRepo, ledger *mockLedgerMaintainer) *StudentService {
	return NewStudentService(repo, ledger, validator.New(), zap.NewNop())
}

func TestStudentServiceCreate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newStudentService(repo, &mockLedgerMaintainer{})

	student, err := svc.Create(context.Background(), CreateStudentRequest{Name: "Alice", RollNumber: "7"})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.True(t, student.Active)
	assert.Zero(t, student.TotalClasses)
}

func TestStudentServiceCreateDuplicateRoll(t *testing.T) {
	repo := newMockStudentRepo()
	repo.existsByRoll["7"] = "other"
	svc := newStudentService(repo, &mockLedgerMaintainer{})

	_, err := svc.Create(context.Background(), CreateStudentRequest{Name: "Alice", RollNumber: "7"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceArchiveDefaultReason(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{ID: "id1", RollNumber: "1", Name: "Alice", Active: true}
	svc := newStudentService(repo, &mockLedgerMaintainer{})

	student, err := svc.Archive(context.Background(), "id1", "")
	require.NoError(t, err)
	assert.False(t, student.Active)
	assert.Equal(t, defaultArchiveReason, repo.archived["id1"])
}

func TestStudentServiceRestore(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{ID: "id1", RollNumber: "1", Name: "Alice", Active: false}
	svc := newStudentService(repo, &mockLedgerMaintainer{})

	student, err := svc.Restore(context.Background(), "id1")
	require.NoError(t, err)
	assert.True(t, student.Active)
	assert.Equal(t, []string{"id1"}, repo.restored)
}

func TestStudentServiceDeleteRemovesLedger(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{ID: "id1", RollNumber: "1", Name: "Alice", Active: true}
	ledger := &mockLedgerMaintainer{}
	svc := newStudentService(repo, ledger)

	require.NoError(t, svc.Delete(context.Background(), "id1"))
	assert.Equal(t, []string{"id1"}, repo.deleted)
	assert.Contains(t, ledger.removed, "id1", "ledger rows go with the student")
}

func TestStudentServiceDeleteUnknownStudent(t *testing.T) {
	svc := newStudentService(newMockStudentRepo(), &mockLedgerMaintainer{})

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceResetStats(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{
		ID: "id1", RollNumber: "1", Name: "Alice", Active: true,
		DerivedStats: models.DerivedStats{TotalClasses: 10, PresentClasses: 8, AttendancePercentage: 80, ConsecutiveAbsences: 1},
	}
	svc := newStudentService(repo, &mockLedgerMaintainer{})

	student, err := svc.ResetStats(context.Background(), "id1")
	require.NoError(t, err)
	assert.Equal(t, models.DerivedStats{}, student.DerivedStats)
	assert.Equal(t, models.DerivedStats{}, repo.statsWrites["id1"])
}

func TestStudentServiceAlertsThreshold(t *testing.T) {
	repo := newMockStudentRepo()
	repo.alerts = []models.Student{{ID: "id1"}}
	svc := newStudentService(repo, &mockLedgerMaintainer{}).WithAlertThreshold(3)

	students, err := svc.Alerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 3, repo.lastStreak)
}

func TestStudentServiceListActiveUsesCache(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{ID: "id1", RollNumber: "1", Name: "Alice", Active: true}
	cache := newFakeCache()
	svc := newStudentService(repo, &mockLedgerMaintainer{}).WithCache(cache, time.Minute)

	first, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.listActive)

	second, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listActive, "second read served from cache")
}

func TestStudentServiceMutationsInvalidateCache(t *testing.T) {
	repo := newMockStudentRepo()
	cache := newFakeCache()
	svc := newStudentService(repo, &mockLedgerMaintainer{}).WithCache(cache, time.Minute)

	_, err := svc.Create(context.Background(), CreateStudentRequest{Name: "Alice", RollNumber: "7"})
	require.NoError(t, err)
	assert.Contains(t, cache.deletes, rosterCachePattern)
}

func TestStudentServiceVerify(t *testing.T) {
	repo := newMockStudentRepo()
	repo.students["id1"] = models.Student{ID: "id1", RollNumber: "1", Name: "Alice", Active: true}
	first := "2024-01-01"
	last := "2024-03-15"
	ledger := &mockLedgerMaintainer{verification: &models.LedgerVerification{
		StudentID: "id1", TotalRecords: 40, FirstDate: &first, LastDate: &last,
	}}
	svc := newStudentService(repo, ledger)

	verification, err := svc.Verify(context.Background(), "id1")
	require.NoError(t, err)
	assert.Equal(t, 40, verification.TotalRecords)
	assert.Equal(t, "2024-01-01", *verification.FirstDate)
}
