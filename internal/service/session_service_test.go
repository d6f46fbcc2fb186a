package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

type mockRoster struct {
	students []models.Student
	err      error
}

func (m *mockRoster) ListActive(ctx context.Context) ([]models.Student, error) {
	return m.students, m.err
}

type mockCommitEngine struct {
	result    *CommitResult
	err       error
	decisions []map[string]models.AttendanceStatus
}

func (m *mockCommitEngine) Commit(ctx context.Context, decisions map[string]models.AttendanceStatus) (*CommitResult, error) {
	m.decisions = append(m.decisions, decisions)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func testRoster() []models.Student {
	return []models.Student{
		{ID: "s3", RollNumber: "3", Name: "Carol", Active: true},
		{ID: "s1", RollNumber: "1", Name: "Alice", Active: true},
		{ID: "s2", RollNumber: "2", Name: "Bob", Active: true},
	}
}

func TestSessionStartSortsQueue(t *testing.T) {
	svc := NewSessionService(&mockRoster{students: testRoster()}, &mockCommitEngine{}, zap.NewNop())

	view, err := svc.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "in_progress", view.State)
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, 3, view.Remaining)
	require.NotNil(t, view.Current)
	assert.Equal(t, "1", view.Current.RollNumber, "lowest roll number presented first")
}

func TestSessionStartEmptyRoster(t *testing.T) {
	svc := NewSessionService(&mockRoster{}, &mockCommitEngine{}, zap.NewNop())

	_, err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmptyRoster.Code, appErrors.FromError(err).Code)
}

func TestSessionDecideUndoFlow(t *testing.T) {
	svc := NewSessionService(&mockRoster{students: testRoster()}, &mockCommitEngine{}, zap.NewNop())
	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	view, err := svc.Decide(models.AttendanceStatusPresent)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Decided)

	view, err = svc.Decide(models.AttendanceStatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Decided)

	view, err = svc.Undo()
	require.NoError(t, err)
	assert.Equal(t, 1, view.Decided)
	assert.Equal(t, 2, view.Remaining)
	require.NotNil(t, view.Current)
	assert.Equal(t, "2", view.Current.RollNumber, "undone student returns to the front")
}

func TestSessionDecideWithoutSession(t *testing.T) {
	svc := NewSessionService(&mockRoster{students: testRoster()}, &mockCommitEngine{}, zap.NewNop())

	_, err := svc.Decide(models.AttendanceStatusPresent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoSession.Code, appErrors.FromError(err).Code)

	_, err = svc.Undo()
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoSession.Code, appErrors.FromError(err).Code)
}

func TestSessionDecideInvalidStatus(t *testing.T) {
	svc := NewSessionService(&mockRoster{students: testRoster()}, &mockCommitEngine{}, zap.NewNop())
	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	_, err = svc.Decide(models.AttendanceStatus("late"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSessionCloseCommitsDecisions(t *testing.T) {
	engine := &mockCommitEngine{result: &CommitResult{Date: "2024-03-15", Recorded: 2}}
	svc := NewSessionService(&mockRoster{students: testRoster()}, engine, zap.NewNop())
	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	_, err = svc.Decide(models.AttendanceStatusPresent)
	require.NoError(t, err)
	_, err = svc.Decide(models.AttendanceStatusAbsent)
	require.NoError(t, err)

	result, err := svc.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Committed)
	require.Len(t, engine.decisions, 1)
	assert.Equal(t, models.AttendanceStatusPresent, engine.decisions[0]["s1"])
	assert.Equal(t, models.AttendanceStatusAbsent, engine.decisions[0]["s2"])

	require.Len(t, result.Results, 2)
	assert.Equal(t, "Alice", result.Results[0].StudentName, "results come back roll-ordered")
	assert.Equal(t, "Bob", result.Results[1].StudentName)

	view := svc.View()
	assert.Equal(t, "idle", view.State)
	assert.Zero(t, view.Decided)
}

func TestSessionCloseWithoutDecisionsSkipsCommit(t *testing.T) {
	engine := &mockCommitEngine{}
	svc := NewSessionService(&mockRoster{students: testRoster()}, engine, zap.NewNop())
	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	result, err := svc.Close(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Empty(t, engine.decisions, "no commit attempted with an empty decision map")
	assert.Equal(t, "idle", svc.View().State)
}

func TestSessionClosePreservedOnCommitFailure(t *testing.T) {
	engine := &mockCommitEngine{err: appErrors.Clone(appErrors.ErrDuplicateSubmission, "")}
	svc := NewSessionService(&mockRoster{students: testRoster()}, engine, zap.NewNop())
	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	_, err = svc.Decide(models.AttendanceStatusPresent)
	require.NoError(t, err)

	_, err = svc.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSubmission.Code, appErrors.FromError(err).Code)

	view := svc.View()
	assert.Equal(t, "in_progress", view.State, "failed commit must not discard the session")
	assert.Equal(t, 1, view.Decided)

	// Once the engine recovers the same session closes cleanly.
	engine.err = nil
	engine.result = &CommitResult{Date: "2024-03-15", Recorded: 1}
	result, err := svc.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Committed)
}

func TestSessionCloseWithoutSession(t *testing.T) {
	svc := NewSessionService(&mockRoster{students: testRoster()}, &mockCommitEngine{}, zap.NewNop())

	_, err := svc.Close(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoSession.Code, appErrors.FromError(err).Code)
}
