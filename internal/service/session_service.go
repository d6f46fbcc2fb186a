package service

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	"github.com/98iam/classtrack-api/internal/session"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

type rosterReader interface {
	ListActive(ctx context.Context) ([]models.Student, error)
}

type commitEngine interface {
	Commit(ctx context.Context, decisions map[string]models.AttendanceStatus) (*CommitResult, error)
}

// SessionView is a read-side snapshot of the active session for the UI.
type SessionView struct {
	State     string          `json:"state"`
	Current   *models.Student `json:"current,omitempty"`
	Remaining int             `json:"remaining"`
	Decided   int             `json:"decided"`
	Total     int             `json:"total"`
}

// SessionResultEntry is one row of today's results, roll-ordered.
type SessionResultEntry struct {
	StudentID   string                  `json:"student_id"`
	StudentName string                  `json:"student_name"`
	RollNumber  string                  `json:"roll_number"`
	Status      models.AttendanceStatus `json:"status"`
}

// CloseResult reports the outcome of closing a session.
type CloseResult struct {
	Committed bool                 `json:"committed"`
	Commit    *CommitResult        `json:"commit,omitempty"`
	Results   []SessionResultEntry `json:"results,omitempty"`
}

// SessionService coordinates the single active attendance session. The
// state machine itself is pure in-memory; this service serialises access,
// loads the roster snapshot on start, and hands the decision map to the
// commit engine on close. A failed commit preserves the session so no
// in-progress decisions are lost.
type SessionService struct {
	mu      sync.Mutex
	sess    *session.Session
	roster  rosterReader
	engine  commitEngine
	logger  *zap.Logger
	metrics *MetricsService
}

// NewSessionService constructs the coordinator.
func NewSessionService(roster rosterReader, engine commitEngine, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sess:   session.New(),
		roster: roster,
		engine: engine,
		logger: logger,
	}
}

// WithMetrics attaches session instrumentation.
func (s *SessionService) WithMetrics(m *MetricsService) *SessionService {
	s.metrics = m
	return s
}

// Start snapshots the active roster and begins a session. Starting over an
// existing session discards its decisions, mirroring how a teacher restarts
// attendance-taking from the top.
func (s *SessionService) Start(ctx context.Context) (*SessionView, error) {
	roster, err := s.roster.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sess.Start(roster) {
		return nil, appErrors.Clone(appErrors.ErrEmptyRoster, "")
	}
	if s.metrics != nil {
		s.metrics.ObserveSessionStarted()
	}
	s.logger.Info("attendance session started", zap.Int("students", len(roster)))
	return s.viewLocked(), nil
}

// View returns the current session snapshot.
func (s *SessionService) View() *SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Decide records a status for the student currently presented. Deciding
// with an empty queue is a no-op, matching the gesture-driven UI where a
// trailing swipe simply does nothing.
func (s *SessionService) Decide(status models.AttendanceStatus) (*SessionView, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be present or absent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.State() != session.InProgress {
		return nil, appErrors.Clone(appErrors.ErrNoSession, "")
	}
	s.sess.Decide(status)
	return s.viewLocked(), nil
}

// Undo unwinds the most recent decision.
func (s *SessionService) Undo() (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.State() != session.InProgress {
		return nil, appErrors.Clone(appErrors.ErrNoSession, "")
	}
	s.sess.Undo()
	return s.viewLocked(), nil
}

// Close finalises the session. With no decisions the session is simply
// discarded. Otherwise the decision map goes to the commit engine; on
// failure the session is reopened untouched so the caller can retry, on
// success the roll-ordered results are returned and the session resets.
func (s *SessionService) Close(ctx context.Context) (*CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess.State() == session.Idle {
		return nil, appErrors.Clone(appErrors.ErrNoSession, "")
	}

	s.sess.BeginClose()
	decisions := s.sess.Decisions()
	if len(decisions) == 0 {
		s.sess.Reset()
		return &CloseResult{Committed: false}, nil
	}

	results := s.resultsLocked(decisions)
	commit, err := s.engine.Commit(ctx, decisions)
	if err != nil {
		s.sess.Reopen()
		return nil, err
	}

	s.sess.Reset()
	return &CloseResult{Committed: true, Commit: commit, Results: results}, nil
}

func (s *SessionService) viewLocked() *SessionView {
	view := &SessionView{
		State:     s.sess.State().String(),
		Remaining: s.sess.Remaining(),
		Decided:   s.sess.Decided(),
	}
	view.Total = view.Remaining + len(s.sess.History())
	if current, ok := s.sess.Current(); ok {
		view.Current = &current
	}
	return view
}

func (s *SessionService) resultsLocked(decisions map[string]models.AttendanceStatus) []SessionResultEntry {
	history := s.sess.History()
	results := make([]SessionResultEntry, 0, len(history))
	for _, student := range history {
		status, ok := decisions[student.ID]
		if !ok {
			continue
		}
		results = append(results, SessionResultEntry{
			StudentID:   student.ID,
			StudentName: student.Name,
			RollNumber:  student.RollNumber,
			Status:      status,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return models.RollValue(results[i].RollNumber) < models.RollValue(results[j].RollNumber)
	})
	return results
}
