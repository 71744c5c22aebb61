// Package media defines the frame-level contract between the pipeline and
// whatever decodes and encodes video files.
package media

import (
	"context"
	"fmt"
	"image"
)

// Format describes the geometry and timing shared by every frame of a file.
type Format struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

// Valid reports whether the format can be decoded or encoded.
func (f Format) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.FrameRate > 0
}

// SameGeometry reports whether a frame has the format's dimensions.
func (f Format) SameGeometry(img image.Image) bool {
	b := img.Bounds()
	return b.Dx() == f.Width && b.Dy() == f.Height
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d@%.3f", f.Width, f.Height, f.FrameRate)
}

// Reader yields the frames of one file in presentation order.
type Reader interface {
	// Format returns the file's format. It is known before the first frame.
	Format() Format
	// Next returns the next frame, or io.EOF after the last one. The
	// returned frame is owned by the caller.
	Next() (*image.NRGBA, error)
	Close() error
}

// Writer appends frames to a new file.
type Writer interface {
	Write(frame *image.NRGBA) error
	// Close flushes and finalizes the file. A Writer that was not closed
	// successfully leaves no usable file behind.
	Close() error
}

// Codec opens files for reading and creates files for writing.
type Codec interface {
	Open(ctx context.Context, path string) (Reader, error)
	Create(ctx context.Context, path string, format Format) (Writer, error)
}
