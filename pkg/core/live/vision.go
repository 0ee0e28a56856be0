package live

import (
	"bytes"
	"image"
	"image/jpeg"
)

// FrameSource supplies camera or screen frames. A nil image with a nil
// error means no frame is available and the tick is skipped.
type FrameSource interface {
	Frame() (image.Image, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func() (image.Image, error)

// Frame calls f.
func (f FrameSourceFunc) Frame() (image.Image, error) { return f() }

// EncodeJPEG encodes img at quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
