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

// AttendanceRepository handles persistence for the append-only attendance
// ledger. Rows carry a storage-level uniqueness constraint on
// (student_id, date) so at-most-once-per-day is enforced by the store.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// AttendanceFilter narrows ledger list queries.
type AttendanceFilter struct {
	Date      *time.Time
	StudentID string
	Page      int
	PageSize  int
}

// List returns ledger rows joined with student details. Rows are ordered
// most recent date first; within a single date, by roll number.
func (r *AttendanceRepository) List(ctx context.Context, filter AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := `FROM attendance_records ar JOIN students s ON s.id = ar.student_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("ar.date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.student_id, ar.date, ar.status, ar.created_at,
        s.name AS student_name, s.roll_number
        %s WHERE %s
        ORDER BY ar.date DESC, %s
        LIMIT %d OFFSET %d`, base, whereClause, rollOrder, size, offset)

	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// StudentIDsForDate returns the IDs of students that already have a ledger
// row on the given calendar day.
func (r *AttendanceRepository) StudentIDsForDate(ctx context.Context, date time.Time) ([]string, error) {
	const query = `SELECT student_id FROM attendance_records WHERE date = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, date); err != nil {
		return nil, fmt.Errorf("attendance rows for date: %w", err)
	}
	return ids, nil
}

// InsertBatch writes all rows in one transaction. A uniqueness conflict on
// (student_id, date) aborts the whole batch so no partial commit is ever
// visible.
func (r *AttendanceRepository) InsertBatch(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	const query = `INSERT INTO attendance_records (id, student_id, date, status, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, date) DO NOTHING RETURNING id`
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		var insertedID string
		if err := tx.QueryRowxContext(ctx, query, rec.ID, rec.StudentID, rec.Date, rec.Status, rec.CreatedAt).Scan(&insertedID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("insert attendance batch: duplicate row for student %s on %s", rec.StudentID, rec.Date.Format(models.DateLayout))
			}
			return fmt.Errorf("insert attendance batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance batch: %w", err)
	}
	committed = true
	return nil
}

// ListByStudent returns the full ledger history for one student, most
// recent date first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, status, created_at
FROM attendance_records WHERE student_id = $1 ORDER BY date DESC`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("ledger history for student: %w", err)
	}
	return rows, nil
}

// DeleteByStudent removes all ledger rows for a student. Only used when a
// student is permanently deleted.
func (r *AttendanceRepository) DeleteByStudent(ctx context.Context, studentID string) (int64, error) {
	const query = `DELETE FROM attendance_records WHERE student_id = $1`
	res, err := r.db.ExecContext(ctx, query, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete ledger rows: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete ledger rows: %w", err)
	}
	return affected, nil
}

// MonthlySummary aggregates per-student present/absent counts in the given
// inclusive date range.
func (r *AttendanceRepository) MonthlySummary(ctx context.Context, from, to time.Time) ([]models.MonthlyStudentSummary, error) {
	query := fmt.Sprintf(`SELECT ar.student_id, s.name AS student_name, s.roll_number,
        COUNT(*) FILTER (WHERE ar.status = 'present') AS present,
        COUNT(*) FILTER (WHERE ar.status = 'absent') AS absent,
        COUNT(*) AS total
        FROM attendance_records ar JOIN students s ON s.id = ar.student_id
        WHERE ar.date >= $1 AND ar.date <= $2
        GROUP BY ar.student_id, s.name, s.roll_number, s.created_at
        ORDER BY %s`, rollOrder)
	var rows []models.MonthlyStudentSummary
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("monthly attendance summary: %w", err)
	}
	return rows, nil
}

// Verification reports how many ledger rows exist for a student and their
// date range.
func (r *AttendanceRepository) Verification(ctx context.Context, studentID string) (*models.LedgerVerification, error) {
	const query = `SELECT COUNT(*) AS total,
        MIN(date)::text AS first_date, MAX(date)::text AS last_date
        FROM attendance_records WHERE student_id = $1`
	row := struct {
		Total     int     `db:"total"`
		FirstDate *string `db:"first_date"`
		LastDate  *string `db:"last_date"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, studentID); err != nil {
		return nil, fmt.Errorf("ledger verification: %w", err)
	}
	return &models.LedgerVerification{
		StudentID:    studentID,
		TotalRecords: row.Total,
		FirstDate:    row.FirstDate,
		LastDate:     row.LastDate,
	}, nil
}
