// Package mediatest provides an uncompressed on-disk codec for tests that
// exercise real file I/O without an ffmpeg binary.
package mediatest

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelworks/segfilter/internal/media"
)

var magic = [4]byte{'R', 'A', 'W', '1'}

// ErrInjected is returned by hooks that simulate codec failures.
var ErrInjected = errors.New("injected codec failure")

// RawCodec stores frames as a small header followed by packed RGBA pixels.
// Hooks let tests inject latency and failures per path.
type RawCodec struct {
	// OpenDelay, when set, is slept before a file is opened.
	OpenDelay func(path string) time.Duration
	// OpenErr, when set and returning non-nil, fails Open for that path.
	OpenErr func(path string) error
	// CreateErr, when set and returning non-nil, fails Create for that path.
	CreateErr func(path string) error

	opens   atomic.Int64
	mu      sync.Mutex
	maxOpen int
	current int
}

// NewRawCodec returns a codec with no hooks installed.
func NewRawCodec() *RawCodec {
	return &RawCodec{}
}

// Opens returns how many files have been opened for reading.
func (c *RawCodec) Opens() int64 { return c.opens.Load() }

// MaxConcurrentReaders returns the peak number of simultaneously open readers.
func (c *RawCodec) MaxConcurrentReaders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxOpen
}

// Open implements media.Codec. A reader counts as open from the moment Open
// is called until it is closed or Open fails.
func (c *RawCodec) Open(ctx context.Context, path string) (media.Reader, error) {
	c.mu.Lock()
	c.current++
	if c.current > c.maxOpen {
		c.maxOpen = c.current
	}
	c.mu.Unlock()

	r, err := c.open(ctx, path)
	if err != nil {
		c.release()
		return nil, err
	}
	c.opens.Add(1)
	return r, nil
}

func (c *RawCodec) release() {
	c.mu.Lock()
	c.current--
	c.mu.Unlock()
}

func (c *RawCodec) open(ctx context.Context, path string) (*rawReader, error) {
	if c.OpenDelay != nil {
		select {
		case <-time.After(c.OpenDelay(path)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.OpenErr != nil {
		if err := c.OpenErr(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)

	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil || hdr != magic {
		f.Close()
		return nil, fmt.Errorf("%s: not a raw video file", path)
	}
	var w, h uint32
	var rateBits uint64
	for _, v := range []any{&w, &h, &rateBits} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: truncated header: %w", path, err)
		}
	}

	return &rawReader{
		codec: c,
		f:     f,
		r:     br,
		format: media.Format{
			Width:     int(w),
			Height:    int(h),
			FrameRate: math.Float64frombits(rateBits),
		},
	}, nil
}

// Create implements media.Codec.
func (c *RawCodec) Create(ctx context.Context, path string, format media.Format) (media.Writer, error) {
	if c.CreateErr != nil {
		if err := c.CreateErr(path); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	bw.Write(magic[:])
	binary.Write(bw, binary.LittleEndian, uint32(format.Width))
	binary.Write(bw, binary.LittleEndian, uint32(format.Height))
	binary.Write(bw, binary.LittleEndian, math.Float64bits(format.FrameRate))
	return &rawWriter{f: f, w: bw, format: format, path: path}, nil
}

type rawReader struct {
	codec  *RawCodec
	f      *os.File
	r      *bufio.Reader
	format media.Format
	closed bool
}

func (r *rawReader) Format() media.Format { return r.format }

func (r *rawReader) Next() (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, r.format.Width, r.format.Height))
	n, err := io.ReadFull(r.r, img.Pix)
	if err == io.EOF && n == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("short frame: %w", err)
	}
	return img, nil
}

func (r *rawReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.codec.release()
	return r.f.Close()
}

type rawWriter struct {
	f      *os.File
	w      *bufio.Writer
	format media.Format
	path   string
}

func (w *rawWriter) Write(frame *image.NRGBA) error {
	if !w.format.SameGeometry(frame) {
		return fmt.Errorf("frame is %v, writer expects %s", frame.Bounds().Size(), w.format)
	}
	rowLen := w.format.Width * 4
	for y := 0; y < w.format.Height; y++ {
		off := frame.PixOffset(frame.Rect.Min.X, frame.Rect.Min.Y+y)
		if _, err := w.w.Write(frame.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

func (w *rawWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		os.Remove(w.path)
		return err
	}
	return w.f.Close()
}

// Frame returns a frame whose every pixel encodes id, so frame identity
// survives a round trip: R = id & 0xff, G = id >> 8, B = 0x5a.
func Frame(format media.Format, id int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, format.Width, format.Height))
	c := color.NRGBA{R: uint8(id), G: uint8(id >> 8), B: 0x5a, A: 255}
	for y := 0; y < format.Height; y++ {
		for x := 0; x < format.Width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// FrameID decodes the id written by Frame from the top-left pixel.
func FrameID(img *image.NRGBA) int {
	c := img.NRGBAAt(img.Rect.Min.X, img.Rect.Min.Y)
	return int(c.R) | int(c.G)<<8
}

// WriteVideo writes count frames numbered 0..count-1 to path.
func WriteVideo(path string, format media.Format, count int) error {
	w, err := NewRawCodec().Create(context.Background(), path, format)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := w.Write(Frame(format, i)); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadFrames returns the format and every frame of a raw video file.
func ReadFrames(path string) (media.Format, []*image.NRGBA, error) {
	r, err := NewRawCodec().Open(context.Background(), path)
	if err != nil {
		return media.Format{}, nil, err
	}
	defer r.Close()

	var frames []*image.NRGBA
	for {
		img, err := r.Next()
		if err == io.EOF {
			return r.Format(), frames, nil
		}
		if err != nil {
			return r.Format(), frames, err
		}
		frames = append(frames, img)
	}
}

// FrameIDs returns the ids of every frame of a raw video file, in order.
func FrameIDs(path string) ([]int, error) {
	_, frames, err := ReadFrames(path)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(frames))
	for i, f := range frames {
		ids[i] = FrameID(f)
	}
	return ids, nil
}
