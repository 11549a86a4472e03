package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/session"
)

func TestCreateSessionRespectsCapacity(t *testing.T) {
	tbl := session.New(1)
	id, err := tbl.CreateSession(0, "transport-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = tbl.CreateSession(0, "transport-2")
	assert.ErrorIs(t, err, session.ErrCapacityExhausted)
}

func TestCloseSessionTransitionsState(t *testing.T) {
	tbl := session.New(4)
	id, err := tbl.CreateSession(0, "t")
	require.NoError(t, err)

	require.NoError(t, tbl.CloseSession(id))
	s, ok := tbl.FindSession(id)
	require.True(t, ok)
	assert.Equal(t, session.StateClosed, s.State)
}

func TestCreateOperationRequiresExistingSession(t *testing.T) {
	tbl := session.New(4)
	_, err := tbl.CreateOperation("missing", 0, session.OpToolCall)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestOperationLifecycle(t *testing.T) {
	tbl := session.New(4)
	sid, err := tbl.CreateSession(0, "t")
	require.NoError(t, err)

	opID, err := tbl.CreateOperation(sid, 10, session.OpToolCall)
	require.NoError(t, err)

	op, ok := tbl.FindOperation(opID)
	require.True(t, ok)
	assert.Equal(t, session.OpStatusPending, op.Status)

	require.NoError(t, tbl.CompleteOperation(opID, false))
	op, _ = tbl.FindOperation(opID)
	assert.True(t, op.Completed)
	assert.Equal(t, session.OpStatusCompleted, op.Status)

	assert.ErrorIs(t, tbl.CompleteOperation(opID, false), session.ErrAlreadyComplete)
}

func TestCancelOperation(t *testing.T) {
	tbl := session.New(4)
	sid, _ := tbl.CreateSession(0, "t")
	opID, _ := tbl.CreateOperation(sid, 0, session.OpCustom)

	require.NoError(t, tbl.CancelOperation(opID))
	op, _ := tbl.FindOperation(opID)
	assert.True(t, op.Canceled)
	assert.Equal(t, session.OpStatusCanceled, op.Status)
}

func TestProcessTimeoutsClosesIdleSessions(t *testing.T) {
	tbl := session.New(4)
	id, err := tbl.CreateSession(0, "t")
	require.NoError(t, err)

	closed := tbl.ProcessTimeouts(500, 1000)
	assert.Empty(t, closed)

	closed = tbl.ProcessTimeouts(1500, 1000)
	require.Len(t, closed, 1)
	assert.Equal(t, id, closed[0])

	s, _ := tbl.FindSession(id)
	assert.Equal(t, session.StateTimedOut, s.State)
}

func TestTouchRefreshesIdleClock(t *testing.T) {
	tbl := session.New(4)
	id, err := tbl.CreateSession(0, "t")
	require.NoError(t, err)

	require.NoError(t, tbl.Touch(id, 900))
	closed := tbl.ProcessTimeouts(1500, 1000)
	assert.Empty(t, closed)
}
