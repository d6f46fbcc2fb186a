package models

import "time"

// DerivedStats holds the attendance counters projected from the ledger.
// They are written only by the recompute engine (or an explicit stats
// reset) and are never authoritative: the ledger is.
type DerivedStats struct {
	TotalClasses         int `db:"total_classes" json:"total_classes"`
	PresentClasses       int `db:"present_classes" json:"present_classes"`
	AttendancePercentage int `db:"attendance_percentage" json:"attendance_percentage"`
	ConsecutiveAbsences  int `db:"consecutive_absences" json:"consecutive_absences"`
}

// Student represents a learner registered in the class roster.
type Student struct {
	ID         string  `db:"id" json:"id"`
	RollNumber string  `db:"roll_number" json:"roll_number"`
	Name       string  `db:"name" json:"name"`
	Phone      *string `db:"phone" json:"phone,omitempty"`
	Email      *string `db:"email" json:"email,omitempty"`
	Active     bool    `db:"is_active" json:"is_active"`

	DerivedStats

	ArchivedAt     *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	ArchivedReason *string    `db:"archived_reason" json:"archived_reason,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
