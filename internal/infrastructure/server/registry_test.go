package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

type fakeTransport struct {
	closed   atomic.Int32
	closeErr error
}

func (t *fakeTransport) HandleMessage(context.Context, shared.JSONRPCRequest) *shared.JSONRPCResponse {
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed.Add(1)
	return t.closeErr
}

func testRegistry(auto bool) *SessionRegistry {
	return NewSessionRegistry(RegistryConfig{
		InactivityTimeout: 30 * time.Minute,
		SweepInterval:     5 * time.Minute,
		AutoRecreate:      auto,
	}, logging.NewNop())
}

func TestRegisterAndGet(t *testing.T) {
	reg := testRegistry(false)
	transport := &fakeTransport{}

	session := reg.Register(transport, "127.0.0.1", "test-client")
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "test-client", session.ClientLabel)
	assert.True(t, reg.Has(session.ID))
	assert.Equal(t, 1, reg.Count())

	got, ok := reg.Get(session.ID)
	require.True(t, ok)
	assert.Same(t, session, got)
}

func TestRemoveClosesTransportOnce(t *testing.T) {
	reg := testRegistry(false)
	transport := &fakeTransport{}
	session := reg.Register(transport, "", "")

	reg.Remove(session.ID)
	assert.False(t, reg.Has(session.ID))
	assert.Equal(t, int32(1), transport.closed.Load())

	// Idempotent: a second remove is a no-op.
	reg.Remove(session.ID)
	assert.Equal(t, int32(1), transport.closed.Load())
}

func TestRemoveSwallowsCloseError(t *testing.T) {
	reg := testRegistry(false)
	transport := &fakeTransport{closeErr: errors.New("already closed")}
	session := reg.Register(transport, "", "")

	reg.Remove(session.ID)
	assert.False(t, reg.Has(session.ID))
}

func TestTouchRefreshesActivity(t *testing.T) {
	reg := testRegistry(false)
	session := reg.Register(&fakeTransport{}, "", "")

	before := session.LastActivity
	time.Sleep(5 * time.Millisecond)
	reg.Touch(session.ID)
	assert.True(t, session.LastActivity.After(before))

	// Touching a dead session must not panic.
	reg.Touch("gone")
}

func TestValidateAdmissionTable(t *testing.T) {
	reg := testRegistry(false)
	live := reg.Register(&fakeTransport{}, "", "")

	tests := []struct {
		name         string
		id           string
		isInitialize bool
		decision     Decision
		wantErr      error
	}{
		{
			name:         "initialize without id creates",
			isInitialize: true,
			decision:     DecisionCreateNew,
		},
		{
			name:         "initialize with live id rejected",
			id:           live.ID,
			isInitialize: true,
			wantErr:      &domain.SessionExistsError{},
		},
		{
			name:         "initialize with dead id creates",
			id:           "expired",
			isInitialize: true,
			decision:     DecisionCreateNew,
		},
		{
			name:    "request without id rejected",
			wantErr: &domain.MissingSessionError{},
		},
		{
			name:     "request with live id uses existing",
			id:       live.ID,
			decision: DecisionUseExisting,
		},
		{
			name:    "request with dead id rejected",
			id:      "expired",
			wantErr: &domain.SessionNotFoundError{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := reg.Validate(tc.id, tc.isInitialize)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.IsType(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.decision, decision)
		})
	}
}

func TestValidateAutoRecreate(t *testing.T) {
	reg := testRegistry(true)

	decision, err := reg.Validate("expired", false)
	require.NoError(t, err)
	assert.Equal(t, DecisionCreateNew, decision)

	// Missing identifiers are still rejected.
	_, err = reg.Validate("", false)
	assert.IsType(t, &domain.MissingSessionError{}, err)
}

func TestEvictStaleSessions(t *testing.T) {
	reg := NewSessionRegistry(RegistryConfig{
		InactivityTimeout: 20 * time.Millisecond,
		SweepInterval:     5 * time.Millisecond,
	}, logging.NewNop())
	reg.Start()
	defer func() { _ = reg.Shutdown() }()

	stale := &fakeTransport{}
	staleSession := reg.Register(stale, "", "")

	active := &fakeTransport{}
	activeSession := reg.Register(active, "", "")

	// Keep one session alive across the eviction horizon.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		reg.Touch(activeSession.ID)
		time.Sleep(5 * time.Millisecond)
	}

	assert.False(t, reg.Has(staleSession.ID))
	assert.True(t, reg.Has(activeSession.ID))
	assert.Equal(t, int32(1), stale.closed.Load())
	assert.Equal(t, int32(0), active.closed.Load())
}

func TestShutdownClosesEverythingOnce(t *testing.T) {
	reg := testRegistry(false)
	reg.Start()

	first := &fakeTransport{}
	second := &fakeTransport{closeErr: errors.New("close failed")}
	reg.Register(first, "", "")
	reg.Register(second, "", "")

	err := reg.Shutdown()
	require.Error(t, err)
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, int32(1), first.closed.Load())
	assert.Equal(t, int32(1), second.closed.Load())

	// A second shutdown does nothing and reports nothing.
	assert.NoError(t, reg.Shutdown())
	assert.Equal(t, int32(1), first.closed.Load())
}
