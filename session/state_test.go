package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	tests := []struct {
		state   State
		trigger Trigger
		want    bool
	}{
		{Idle, Activate, true},
		{Idle, Start, false},
		{DeviceInitializing, Activate, false},
		{Ready, Retry, true},
		{Ready, Activate, true},
		{Ready, Start, false},
		{SessionReady, Start, true},
		{SessionReady, Stop, false},
		{SessionReady, Process, false},
		{Recording, Stop, true},
		{Recording, Process, true},
		{Recording, Start, false},
		{Stopping, Stop, false},
		{Processing, Stop, false},
		{Processing, Process, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.Allows(tt.trigger), "%s/%s", tt.state, tt.trigger)
	}

	for s := Idle; s <= Processing; s++ {
		assert.True(t, s.Allows(Deactivate), "deactivate from %s", s)
	}
}

func TestInvalidError(t *testing.T) {
	err := invalid(SessionReady, Stop)
	require.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "invalid transition: cannot stop while session ready", err.Error())
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("arrival")
	require.NoError(t, err)
	assert.Equal(t, ArrivalOrder, o)

	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, IssueOrder, o)

	_, err = ParseOrder("random")
	assert.Error(t, err)
}

func TestMailboxKeepsLatest(t *testing.T) {
	m := newMailbox()
	m.put(Snapshot{State: Ready})
	m.put(Snapshot{State: Recording})

	got := <-m
	assert.Equal(t, Recording, got.State)
	select {
	case s := <-m:
		t.Fatalf("unexpected second snapshot %v", s.State)
	default:
	}
}
