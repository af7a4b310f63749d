package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"time"
)

const DefaultQuality = 95

// Frame is one encoded sample taken from a Source.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// Extractor encodes whatever the source shows at call time as JPEG.
type Extractor struct {
	Quality int
	Now     func() time.Time
}

// Capture returns false when the source has nothing to show yet or the
// frame could not be encoded; the caller should skip the sample.
func (e Extractor) Capture(src Source) (Frame, bool) {
	if src == nil {
		return Frame{}, false
	}
	img := src.Current()
	if img == nil {
		return Frame{}, false
	}
	b := img.Bounds()
	if b.Empty() {
		return Frame{}, false
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Frame{}, false
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Frame{
		Data:       buf.Bytes(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: now(),
	}, true
}

// Decode is the inverse of Capture, used by the development service.
func Decode(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}
