package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/media"
)

// Codec decodes and encodes video through ffmpeg subprocesses, exchanging
// frames as raw RGBA over pipes.
//
// The container is chosen by file extension: ".mkv" files are written with
// the lossless FFV1 codec so intermediate segments are frame-exact, ".mp4"
// files with H.264.
type Codec struct {
	ffmpegPath string
	prober     *Prober
}

// NewCodec creates a Codec. The prober supplies geometry and frame rate
// before a decode starts.
func NewCodec(ffmpegPath string, prober *Prober) *Codec {
	return &Codec{ffmpegPath: ffmpegPath, prober: prober}
}

// Open starts decoding path.
func (c *Codec) Open(ctx context.Context, path string) (media.Reader, error) {
	probe, err := c.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	format := media.Format{
		Width:     probe.Width,
		Height:    probe.Height,
		FrameRate: probe.FrameRate,
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%s: no decodable video stream (%s)", path, format)
	}

	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	logger.Debug("FFmpeg decode command", "args", strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, c.ffmpegPath)
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &decoder{
		cmd:    cmd,
		stdout: bufio.NewReaderSize(stdout, format.Width*format.Height*4),
		stderr: stderr,
		format: format,
		path:   path,
	}, nil
}

// Create starts encoding a new file at path.
func (c *Codec) Create(ctx context.Context, path string, format media.Format) (media.Writer, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("cannot encode %s: invalid format %s", path, format)
	}

	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", format.Width, format.Height),
		"-framerate", strconv.FormatFloat(format.FrameRate, 'f', -1, 64),
		"-i", "pipe:0",
	}
	args = append(args, encodeArgs(path, format)...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	logger.Debug("FFmpeg encode command", "args", strings.Join(args, " "))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, c.ffmpegPath)
		}
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &encoder{
		cmd:    cmd,
		stdin:  stdin,
		buf:    bufio.NewWriterSize(stdin, format.Width*format.Height*4),
		stderr: stderr,
		format: format,
		path:   path,
	}, nil
}

// encodeArgs returns the output codec arguments for a path.
func encodeArgs(path string, format media.Format) []string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv":
		return []string{"-c:v", "ffv1", "-level", "3", "-g", "1"}
	default:
		// 4:2:0 subsampling needs even dimensions.
		pixFmt := "yuv420p"
		if format.Width%2 != 0 || format.Height%2 != 0 {
			pixFmt = "yuv444p"
		}
		return []string{
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-pix_fmt", pixFmt,
			"-movflags", "+faststart",
		}
	}
}

type decoder struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	stderr *tailBuffer
	format media.Format
	path   string
	done   bool
}

func (d *decoder) Format() media.Format { return d.format }

func (d *decoder) Next() (*image.NRGBA, error) {
	if d.done {
		return nil, io.EOF
	}
	img := image.NewNRGBA(image.Rect(0, 0, d.format.Width, d.format.Height))
	n, err := io.ReadFull(d.stdout, img.Pix)
	if err == nil {
		return img, nil
	}

	d.done = true
	waitErr := d.cmd.Wait()
	if waitErr != nil {
		return nil, &CodecError{Op: "decode", Path: d.path, Err: waitErr, Stderr: d.stderr.String()}
	}
	if errors.Is(err, io.EOF) && n == 0 {
		return nil, io.EOF
	}
	return nil, &CodecError{Op: "decode", Path: d.path, Err: fmt.Errorf("truncated frame: %w", err)}
}

// Close stops the decoder. A decoder closed before EOF kills its process.
func (d *decoder) Close() error {
	if d.done {
		return nil
	}
	d.done = true
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	_ = d.cmd.Wait()
	return nil
}

type encoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	buf    *bufio.Writer
	stderr *tailBuffer
	format media.Format
	path   string
	closed bool
}

func (e *encoder) Write(frame *image.NRGBA) error {
	if !e.format.SameGeometry(frame) {
		return fmt.Errorf("frame is %v, encoder expects %s", frame.Bounds().Size(), e.format)
	}
	rowLen := e.format.Width * 4
	for y := 0; y < e.format.Height; y++ {
		off := frame.PixOffset(frame.Rect.Min.X, frame.Rect.Min.Y+y)
		if _, err := e.buf.Write(frame.Pix[off : off+rowLen]); err != nil {
			return &CodecError{Op: "encode", Path: e.path, Err: err, Stderr: e.stderr.String()}
		}
	}
	return nil
}

// Close flushes remaining frames and waits for ffmpeg to finalize the file.
// On failure the partial file is removed.
func (e *encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	flushErr := e.buf.Flush()
	closeErr := e.stdin.Close()
	waitErr := e.cmd.Wait()

	err := errors.Join(flushErr, closeErr, waitErr)
	if err != nil {
		os.Remove(e.path)
		return &CodecError{Op: "encode", Path: e.path, Err: err, Stderr: e.stderr.String()}
	}
	return nil
}
