package cadence

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickCount(t *testing.T) {
	var s Scheduler
	var n atomic.Int64

	period := 20 * time.Millisecond
	window := 500 * time.Millisecond

	s.Arm(period, func(time.Time) { n.Add(1) })
	time.Sleep(window)
	s.Disarm()

	want := int64(window / period)
	got := n.Load()
	// ±1 plus scheduler slack.
	assert.InDelta(t, want, got, 3, "got %d ticks, want about %d", got, want)
}

func TestSlowCallbackDoesNotShiftSchedule(t *testing.T) {
	var s Scheduler
	var stamps []time.Time
	done := make(chan struct{})

	s.Arm(25*time.Millisecond, func(at time.Time) {
		stamps = append(stamps, at)
		if len(stamps) == 4 {
			close(done)
		}
		time.Sleep(5 * time.Millisecond)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ticks never arrived")
	}
	s.Disarm()

	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.InDelta(t, float64(25*time.Millisecond), float64(gap), float64(15*time.Millisecond))
	}
}

func TestDisarmIdempotent(t *testing.T) {
	var s Scheduler
	s.Disarm()
	assert.False(t, s.Armed())

	s.Arm(10*time.Millisecond, func(time.Time) {})
	require.True(t, s.Armed())

	s.Disarm()
	s.Disarm()
	assert.False(t, s.Armed())
}

func TestNoTicksAfterDisarm(t *testing.T) {
	var s Scheduler
	var n atomic.Int64

	s.Arm(5*time.Millisecond, func(time.Time) { n.Add(1) })
	time.Sleep(30 * time.Millisecond)
	s.Disarm()

	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, n.Load())
}

func TestArmReplaces(t *testing.T) {
	var s Scheduler
	var first, second atomic.Int64

	s.Arm(5*time.Millisecond, func(time.Time) { first.Add(1) })
	time.Sleep(20 * time.Millisecond)
	s.Arm(5*time.Millisecond, func(time.Time) { second.Add(1) })

	stopped := first.Load()
	time.Sleep(30 * time.Millisecond)
	s.Disarm()

	assert.Equal(t, stopped, first.Load())
	assert.Positive(t, second.Load())
}
