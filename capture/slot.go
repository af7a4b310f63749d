package capture

import (
	"image"
	"sync"
)

// frameSlot holds only the most recent frame. Storing overwrites whatever
// was there, consumed or not.
type frameSlot struct {
	mu      sync.Mutex
	img     image.Image
	stored  uint64
	dropped uint64
	read    bool
}

func (s *frameSlot) store(img image.Image) {
	s.mu.Lock()
	if s.img != nil && !s.read {
		s.dropped++
	}
	s.img = img
	s.read = false
	s.stored++
	s.mu.Unlock()
}

func (s *frameSlot) load() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = true
	return s.img
}

func (s *frameSlot) stats() (stored, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, s.dropped
}
