package models

import "time"

// DateLayout is the calendar-day format used throughout the ledger.
const DateLayout = "2006-01-02"

// AttendanceStatus represents the recorded status for one student and day.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid reports whether the status is one of the permitted values.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// AttendanceRecord is one immutable ledger row. Rows are only ever created
// by a session commit and deleted as a side effect of permanently deleting
// a student.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// Day returns the calendar day the record belongs to.
func (r AttendanceRecord) Day() string {
	return r.Date.Format(DateLayout)
}

// AttendanceRecordDetail joins a ledger row with its student for list views.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName string `db:"student_name" json:"student_name"`
	RollNumber  string `db:"roll_number" json:"roll_number"`
}

// MonthlyStudentSummary aggregates one student's ledger rows inside a month.
type MonthlyStudentSummary struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	RollNumber  string `db:"roll_number" json:"roll_number"`
	Present     int    `db:"present" json:"present"`
	Absent      int    `db:"absent" json:"absent"`
	Total       int    `db:"total" json:"total"`
}

// LedgerVerification reports what historical data exists for a student.
// Used before destructive roster operations to confirm what would be lost.
type LedgerVerification struct {
	StudentID    string  `json:"student_id"`
	TotalRecords int     `json:"total_records"`
	FirstDate    *string `json:"first_date,omitempty"`
	LastDate     *string `json:"last_date,omitempty"`
}
