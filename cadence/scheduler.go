// Package cadence fires a callback at a fixed period.
package cadence

import (
	"sync"
	"time"
)

// Scheduler runs at most one ticker at a time. The callback runs on the
// ticker goroutine and should hand its work off rather than block, since
// ticks that arrive while it is busy are dropped by time.Ticker.
type Scheduler struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Arm starts calling onTick every period, replacing any ticker already
// running.
func (s *Scheduler) Arm(period time.Duration, onTick func(time.Time)) {
	if period <= 0 {
		panic("cadence: non-positive period")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				onTick(t)
			}
		}
	}()
}

// Disarm stops the ticker and waits for its goroutine to exit. Calling it
// when nothing is armed does nothing. It must not be called from onTick.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
