package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/98iam/classtrack-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func ledgerDay(value string) time.Time {
	day, err := time.Parse(models.DateLayout, value)
	if err != nil {
		panic(err)
	}
	return day
}

func TestAttendanceRepositoryListByDate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := ledgerDay("2024-03-15")
	rows := sqlmock.NewRows([]string{"id", "student_id", "date", "status", "created_at", "student_name", "roll_number"}).
		AddRow("rec-1", "stu-1", date, "present", time.Now(), "Alice", "1").
		AddRow("rec-2", "stu-2", date, "absent", time.Now(), "Bob", "2")
	mock.ExpectQuery("SELECT ar.id, ar.student_id, ar.date, ar.status").
		WithArgs(date).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendance_records ar")).
		WithArgs(date).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	records, total, err := repo.List(context.Background(), AttendanceFilter{Date: &date})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 2, total)
	require.Equal(t, "Alice", records[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentIDsForDate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := ledgerDay("2024-03-15")
	mock.ExpectQuery("SELECT student_id FROM attendance_records WHERE date").
		WithArgs(date).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("stu-1").AddRow("stu-2"))

	ids, err := repo.StudentIDsForDate(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, []string{"stu-1", "stu-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := ledgerDay("2024-03-15")
	records := []models.AttendanceRecord{
		{StudentID: "stu-1", Date: date, Status: models.AttendanceStatusPresent},
		{StudentID: "stu-2", Date: date, Status: models.AttendanceStatusAbsent},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "stu-1", date, "present", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "stu-2", date, "absent", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-2"))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), records))
	require.NotEmpty(t, records[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertBatchConflictAborts(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	date := ledgerDay("2024-03-15")
	records := []models.AttendanceRecord{
		{StudentID: "stu-1", Date: date, Status: models.AttendanceStatusPresent},
		{StudentID: "stu-2", Date: date, Status: models.AttendanceStatusAbsent},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "stu-1", date, "present", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))
	mock.ExpectQuery("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), "stu-2", date, "absent", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), records)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	rows := sqlmock.NewRows([]string{"id", "student_id", "date", "status", "created_at"}).
		AddRow("rec-2", "stu-1", ledgerDay("2024-03-15"), "absent", time.Now()).
		AddRow("rec-1", "stu-1", ledgerDay("2024-03-14"), "present", time.Now())
	mock.ExpectQuery("SELECT id, student_id, date, status, created_at FROM attendance_records WHERE student_id").
		WithArgs("stu-1").
		WillReturnRows(rows)

	records, err := repo.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, models.AttendanceStatusAbsent, records[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteByStudent(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectExec("DELETE FROM attendance_records WHERE student_id").
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 12))

	removed, err := repo.DeleteByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, int64(12), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlySummary(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	from := ledgerDay("2024-03-01")
	to := ledgerDay("2024-03-31")
	rows := sqlmock.NewRows([]string{"student_id", "student_name", "roll_number", "present", "absent", "total"}).
		AddRow("stu-1", "Alice", "1", 18, 2, 20)
	mock.ExpectQuery("SELECT ar.student_id, s.name AS student_name").
		WithArgs(from, to).
		WillReturnRows(rows)

	summaries, err := repo.MonthlySummary(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 18, summaries[0].Present)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryVerification(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	rows := sqlmock.NewRows([]string{"total", "first_date", "last_date"}).
		AddRow(40, "2024-01-08", "2024-03-15")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs("stu-1").
		WillReturnRows(rows)

	verification, err := repo.Verification(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, 40, verification.TotalRecords)
	require.Equal(t, "2024-01-08", *verification.FirstDate)
	require.Equal(t, "2024-03-15", *verification.LastDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
