package ffmpeg

import (
	"errors"
	"io/fs"
	"os/exec"
	"strings"
)

var (
	// ErrToolMissing is returned when the ffmpeg or ffprobe binary cannot be found.
	ErrToolMissing = errors.New("media toolchain not available")

	// ErrRemuxFailed is returned when the audio track could not be muxed onto the video.
	ErrRemuxFailed = errors.New("remux failed")
)

// RemuxError carries the toolchain output of a failed remux.
type RemuxError struct {
	Err    error
	Stderr string
}

func (e *RemuxError) Error() string {
	return e.Err.Error()
}

func (e *RemuxError) Unwrap() error {
	return e.Err
}

// CodecError is returned when a decode or encode subprocess fails.
type CodecError struct {
	Op     string // "decode" or "encode"
	Path   string
	Err    error
	Stderr string
}

func (e *CodecError) Error() string {
	msg := e.Op + " " + e.Path + ": " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// tailBuffer keeps the last max bytes written to it, for stderr excerpts.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// String returns the last lines of output joined on one line.
func (t *tailBuffer) String() string {
	lines := strings.Split(strings.TrimSpace(string(t.buf)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
