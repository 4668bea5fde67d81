package state

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestManager_SetConnectedReportsTransitions(t *testing.T) {
	m := New()
	m.SetEnabled(true)
	now := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)

	assert.False(t, m.SetConnected(false, now), "already disconnected")
	assert.True(t, m.SetConnected(true, now))
	assert.False(t, m.SetConnected(true, now), "already connected")

	info := m.Snapshot()
	assert.Equal(t, PhaseConnected, info.Phase)
	assert.NotEmpty(t, info.ConnectionID)
	assert.Equal(t, now, info.ConnectedAt)

	assert.True(t, m.SetConnected(false, now))
	info = m.Snapshot()
	assert.Equal(t, PhaseDisconnected, info.Phase)
	assert.Empty(t, info.ConnectionID)
	assert.True(t, info.ConnectedAt.IsZero())
}

func TestManager_Phases(t *testing.T) {
	m := New()
	assert.Equal(t, PhaseDisabled, m.GetPhase())

	m.SetEnabled(true)
	m.SetPhase(PhaseConnecting)
	assert.Equal(t, PhaseConnecting, m.GetPhase())

	m.SetPhase(PhaseConnected)
	assert.Equal(t, PhaseConnecting, m.GetPhase(), "connected is only entered through SetConnected")

	m.RecordAttempt(3, errors.New("refused"))
	info := m.Snapshot()
	assert.Equal(t, 3, info.Attempts)
	assert.Equal(t, "refused", info.LastError)

	m.SetEnabled(false)
	assert.Equal(t, PhaseDisabled, m.GetPhase())
	assert.False(t, m.IsEnabled())
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseDisabled, "disabled"},
		{PhaseConnecting, "connecting"},
		{PhaseConnected, "connected"},
		{PhaseDisconnected, "disconnected"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
	}
}
