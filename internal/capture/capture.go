// Package capture owns the camera device and produces single still frames
// on demand.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

var (
	// ErrNoFrame means no frame is available: the stream is not ready yet
	// or the source has failed. It is a control outcome, not a fault.
	ErrNoFrame = errors.New("no frame available")
	// ErrDeviceUnavailable means the camera is absent or access was denied.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// DefaultQuality is the JPEG quality used for captured stills.
const DefaultQuality = 80

// Frame is one encoded still image. Frames are never shared between calls.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// MIMEType returns the media type of Data.
func (Frame) MIMEType() string {
	return "image/jpeg"
}

// encodeStill decodes a source JPEG, downscales it to maxWidth when wider
// and re-encodes it at quality.
func encodeStill(src []byte, quality, maxWidth int) (Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	b := img.Bounds()
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}

	return Frame{
		Data:       out.Bytes(),
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		CapturedAt: time.Now(),
	}, nil
}
