package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// StillDevice serves a single fixed image as if it were a camera.
type StillDevice struct {
	Image image.Image

	mu     sync.Mutex
	opened int
	closed int
}

// LoadStill decodes a PNG or JPEG file into a StillDevice.
func LoadStill(path string) (*StillDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DeviceError{Reason: NotFound, Err: err}
		}
		if os.IsPermission(err) {
			return nil, &DeviceError{Reason: PermissionDenied, Err: err}
		}
		return nil, &DeviceError{Reason: Unavailable, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DeviceError{Reason: Unavailable, Err: fmt.Errorf("failed to decode %s: %w", path, err)}
	}
	return &StillDevice{Image: img}, nil
}

type stillSource struct {
	img    image.Image
	once   sync.Once
	closed bool
}

func (s *stillSource) Current() image.Image {
	return s.img
}

func (d *StillDevice) Open(ctx context.Context, c Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DeviceError{Reason: Unavailable, Err: err}
	}
	if d.Image == nil {
		return nil, &DeviceError{Reason: NotFound, Err: fmt.Errorf("no image loaded")}
	}
	d.mu.Lock()
	d.opened++
	d.mu.Unlock()
	return &stillSource{img: d.Image}, nil
}

func (d *StillDevice) Close(src Source) error {
	s, ok := src.(*stillSource)
	if !ok {
		return errForeignSource
	}
	s.once.Do(func() {
		s.closed = true
		d.mu.Lock()
		d.closed++
		d.mu.Unlock()
	})
	return nil
}

// Live reports how many sources are open.
func (d *StillDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened - d.closed
}
