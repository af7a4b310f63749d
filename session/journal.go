package session

import (
	"context"
	"time"
)

// Entry describes one finished processing request.
type Entry struct {
	SessionID    string
	StartedAt    time.Time
	Duration     time.Duration
	FramesSent   int
	FramesFailed int
	Partial      bool
	Result       string
	Error        string
}

// Journal records processing outcomes. Record is called off the
// controller's loop.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}
