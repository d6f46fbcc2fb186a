package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/98iam/classtrack-api/internal/models"
)

// rollOrder sorts rows the same way models.RollValue does in memory: the
// leading digit run of the roll number, unparseable rolls as 0, ties broken
// by insertion order.
const rollOrder = `COALESCE(substring(s.roll_number from '^\s*([0-9]+)')::int, 0) ASC, s.created_at ASC`

// StudentRepository manages persistence for the class roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.roll_number, s.name, s.phone, s.email, s.is_active,
        s.total_classes, s.present_classes, s.attendance_percentage, s.consecutive_absences,
        s.archived_at, s.archived_reason, s.created_at, s.updated_at`

// ListActive returns the active roster ordered by numeric roll number.
func (r *StudentRepository) ListActive(ctx context.Context) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s WHERE s.is_active = true ORDER BY %s`, studentColumns, rollOrder)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(s.roll_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	whereClause := strings.Join(conditions, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		studentColumns, base, whereClause, rollOrder, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID, archived or not.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s WHERE s.id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRoll checks if a student with the given roll number exists,
// optionally excluding an ID.
func (r *StudentRepository) ExistsByRoll(ctx context.Context, roll string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE roll_number = $1"
	args := []interface{}{roll}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check roll number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, roll_number, name, phone, email, is_active,
        total_classes, present_classes, attendance_percentage, consecutive_absences, created_at, updated_at)
        VALUES (:id, :roll_number, :name, :phone, :email, :is_active,
        :total_classes, :present_classes, :attendance_percentage, :consecutive_absences, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies the descriptive fields of an existing student. Derived
// counters are deliberately excluded; those go through UpdateDerivedStats.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET roll_number = :roll_number, name = :name, phone = :phone,
        email = :email, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Archive soft-deletes a student, keeping all ledger history.
func (r *StudentRepository) Archive(ctx context.Context, id string, reason string) error {
	const query = `UPDATE students SET is_active = false, archived_at = $2, archived_reason = $3, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), reason); err != nil {
		return fmt.Errorf("archive student: %w", err)
	}
	return nil
}

// Restore reactivates an archived student.
func (r *StudentRepository) Restore(ctx context.Context, id string) error {
	const query = `UPDATE students SET is_active = true, archived_at = NULL, archived_reason = NULL, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("restore student: %w", err)
	}
	return nil
}

// Delete permanently removes a student row.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM students WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// UpdateDerivedStats writes the four ledger-projected counters for a student.
func (r *StudentRepository) UpdateDerivedStats(ctx context.Context, id string, stats models.DerivedStats) error {
	const query = `UPDATE students SET total_classes = $2, present_classes = $3,
        attendance_percentage = $4, consecutive_absences = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id,
		stats.TotalClasses, stats.PresentClasses, stats.AttendancePercentage, stats.ConsecutiveAbsences,
		time.Now().UTC()); err != nil {
		return fmt.Errorf("update derived stats: %w", err)
	}
	return nil
}

// ListAlerts returns active students whose absence streak has reached the
// given threshold, in roll order.
func (r *StudentRepository) ListAlerts(ctx context.Context, minStreak int) ([]models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students s WHERE s.is_active = true AND s.consecutive_absences >= $1 ORDER BY %s`, studentColumns, rollOrder)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, minStreak); err != nil {
		return nil, fmt.Errorf("list absence alerts: %w", err)
	}
	return students, nil
}
