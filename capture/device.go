// Package capture turns a camera (or something standing in for one) into a
// continuously updated image source and encodes samples from it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Constraints are the requested frame dimensions.
type Constraints struct {
	Width  int
	Height int
}

// Source is a live image source. Current returns the newest frame, or nil
// when no frame has arrived yet.
type Source interface {
	Current() image.Image
}

// Device opens and closes sources. Close must be safe to call more than
// once for the same source.
type Device interface {
	Open(ctx context.Context, c Constraints) (Source, error)
	Close(src Source) error
}

type Reason int

const (
	Unavailable Reason = iota
	PermissionDenied
	NotFound
)

func (r Reason) String() string {
	switch r {
	case PermissionDenied:
		return "permission denied"
	case NotFound:
		return "device not found"
	default:
		return "device unavailable"
	}
}

type DeviceError struct {
	Reason Reason
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

var errForeignSource = errors.New("source was not opened by this device")
