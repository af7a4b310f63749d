package session

import "time"

// Session mirrors the server-side recording session.
type Session struct {
	ID        string
	Started   bool
	Recording bool
}

type Indicators struct {
	FaceDetected     bool
	SpeakingDetected bool
}

// RecordingStats describes the current recording. Frames that the service
// answered after they stopped mattering are counted as Late.
type RecordingStats struct {
	StartedAt time.Time
	Sent      int
	Acked     int
	Failed    int
	Skipped   int
	Late      int
	Dropped   int
}

// Snapshot is a copy of everything a UI needs to draw the controller.
// ResultSeq counts finished processings, so equal results stay distinct.
type Snapshot struct {
	State      State
	Session    Session
	Indicators Indicators
	Stats      RecordingStats
	Status     Status
	Result     string
	ResultSeq  uint64
	Pending    bool
	Armed      bool
	At         time.Time
}

// Elapsed is how long the current recording has run as of the snapshot.
func (s Snapshot) Elapsed() time.Duration {
	if !s.Session.Recording || s.Stats.StartedAt.IsZero() {
		return 0
	}
	return s.At.Sub(s.Stats.StartedAt)
}

// mailbox holds the latest snapshot for a single reader. Publishing never
// blocks; an unread snapshot is replaced.
type mailbox chan Snapshot

func newMailbox() mailbox {
	return make(mailbox, 1)
}

// put must only be called from one goroutine.
func (m mailbox) put(s Snapshot) {
	select {
	case <-m:
	default:
	}
	m <- s
}
