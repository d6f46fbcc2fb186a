// Package session implements the in-memory state machine that drives one
// attendance-taking session: students are presented one at a time in roll
// order, each receives a present/absent decision, and decisions can be
// unwound one step at a time until the session is closed.
package session

import "github.com/98iam/classtrack-api/internal/models"

// State identifies the lifecycle phase of a session.
type State int

const (
	// Idle means no session is running.
	Idle State = iota
	// InProgress means a roster has been loaded and decisions are being taken.
	InProgress
	// Closing means the decision map has been handed off for commit.
	Closing
)

// String implements fmt.Stringer for logging.
func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Closing:
		return "closing"
	default:
		return "idle"
	}
}

// Session holds the queue of students awaiting a decision, the stack of
// decided students (for undo) and the accumulated decision map. It performs
// no I/O; persistence happens only when the decisions are committed.
//
// Session is not safe for concurrent use; callers serialize access.
type Session struct {
	state     State
	queue     []models.Student
	history   []models.Student
	decisions map[string]models.AttendanceStatus
}

// New returns an idle session.
func New() *Session {
	return &Session{decisions: make(map[string]models.AttendanceStatus)}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// Start loads the roster snapshot, sorted ascending by numeric roll number
// with ties keeping their input order, and transitions to InProgress.
// An empty roster is a no-op and Start reports false.
func (s *Session) Start(roster []models.Student) bool {
	if len(roster) == 0 {
		return false
	}
	queue := make([]models.Student, len(roster))
	copy(queue, roster)
	models.SortStudentsByRoll(queue)

	s.queue = queue
	s.history = s.history[:0]
	s.decisions = make(map[string]models.AttendanceStatus, len(queue))
	s.state = InProgress
	return true
}

// Decide records a status for the student at the head of the queue and
// moves that student onto the history stack. An empty queue or invalid
// status is a no-op and Decide reports false.
func (s *Session) Decide(status models.AttendanceStatus) (models.Student, bool) {
	if len(s.queue) == 0 || !status.Valid() {
		return models.Student{}, false
	}
	student := s.queue[0]
	s.queue = s.queue[1:]
	s.history = append(s.history, student)
	s.decisions[student.ID] = status
	return student, true
}

// Undo pops the most recently decided student off the history stack,
// restores it to the head of the queue and forgets its decision. An empty
// history is a no-op and Undo reports false. Repeated calls unwind the
// history one decision at a time.
func (s *Session) Undo() (models.Student, bool) {
	if len(s.history) == 0 {
		return models.Student{}, false
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.queue = append([]models.Student{last}, s.queue...)
	delete(s.decisions, last.ID)
	return last, true
}

// BeginClose transitions to Closing so that the decision map can be handed
// to the commit engine. The session keeps its state until Reset so that a
// failed commit loses nothing.
func (s *Session) BeginClose() {
	if s.state == InProgress {
		s.state = Closing
	}
}

// Reopen returns a Closing session to InProgress after a failed commit.
func (s *Session) Reopen() {
	if s.state == Closing {
		s.state = InProgress
	}
}

// Reset discards all session state and returns to Idle.
func (s *Session) Reset() {
	s.queue = nil
	s.history = nil
	s.decisions = make(map[string]models.AttendanceStatus)
	s.state = Idle
}

// Current returns the student awaiting a decision, if any.
func (s *Session) Current() (models.Student, bool) {
	if len(s.queue) == 0 {
		return models.Student{}, false
	}
	return s.queue[0], true
}

// Remaining returns how many students still await a decision.
func (s *Session) Remaining() int {
	return len(s.queue)
}

// Decided returns how many decisions have been taken.
func (s *Session) Decided() int {
	return len(s.decisions)
}

// Queue returns a copy of the pending queue in decision order.
func (s *Session) Queue() []models.Student {
	out := make([]models.Student, len(s.queue))
	copy(out, s.queue)
	return out
}

// History returns a copy of the decided students, oldest first.
func (s *Session) History() []models.Student {
	out := make([]models.Student, len(s.history))
	copy(out, s.history)
	return out
}

// Decisions returns a copy of the decision map.
func (s *Session) Decisions() map[string]models.AttendanceStatus {
	out := make(map[string]models.AttendanceStatus, len(s.decisions))
	for id, status := range s.decisions {
		out[id] = status
	}
	return out
}
