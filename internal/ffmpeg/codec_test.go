package ffmpeg

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelworks/segfilter/internal/media"
)

func TestEncodeArgs(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		format   media.Format
		contains string
	}{
		{"mkv is lossless", "seg.mkv", media.Format{Width: 64, Height: 48, FrameRate: 30}, "ffv1"},
		{"mp4 even dims", "out.mp4", media.Format{Width: 64, Height: 48, FrameRate: 30}, "yuv420p"},
		{"mp4 odd dims", "out.mp4", media.Format{Width: 65, Height: 48, FrameRate: 30}, "yuv444p"},
		{"uppercase ext", "SEG.MKV", media.Format{Width: 2, Height: 2, FrameRate: 1}, "ffv1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := strings.Join(encodeArgs(tt.path, tt.format), " ")
			if !strings.Contains(args, tt.contains) {
				t.Errorf("encodeArgs(%s) = %q, expected to contain %q", tt.path, args, tt.contains)
			}
		})
	}
}

func TestTailBuffer(t *testing.T) {
	buf := newTailBuffer(16)
	buf.Write([]byte("0123456789"))
	buf.Write([]byte("abcdefghij"))
	if got := buf.String(); got != "456789abcdefghij" {
		t.Errorf("expected last 16 bytes, got %q", got)
	}

	lines := newTailBuffer(1024)
	lines.Write([]byte("a\nb\nc\nd\ne\nf\ng\n"))
	if got := lines.String(); got != "c | d | e | f | g" {
		t.Errorf("expected last five lines, got %q", got)
	}
}

func TestCodecMissingTool(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-ffmpeg")
	codec := NewCodec(missing, NewProber(missing))

	_, err := codec.Create(context.Background(), filepath.Join(t.TempDir(), "x.mkv"),
		media.Format{Width: 4, Height: 4, FrameRate: 10})
	if !errors.Is(err, ErrToolMissing) {
		t.Errorf("expected ErrToolMissing, got %v", err)
	}
}

func TestCodecRejectsInvalidFormat(t *testing.T) {
	codec := NewCodec("ffmpeg", NewProber("ffprobe"))
	_, err := codec.Create(context.Background(), "x.mkv", media.Format{Width: 4, Height: 4})
	if err == nil {
		t.Error("expected error for zero frame rate")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	requireTools(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	makeClip(t, src, 1, 20, false)

	codec := NewCodec("ffmpeg", NewProber("ffprobe"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r, err := codec.Open(ctx, src)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	format := r.Format()
	if format.Width != 64 || format.Height != 48 {
		t.Fatalf("unexpected format %s", format)
	}

	seg := filepath.Join(dir, "seg.mkv")
	w, err := codec.Create(ctx, seg, format)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var written int
	for {
		frame, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if err := w.Write(frame); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		written++
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if written != 20 {
		t.Errorf("expected 20 decoded frames, got %d", written)
	}

	r2, err := codec.Open(ctx, seg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer r2.Close()
	var reread int
	for {
		if _, err := r2.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed: %v", err)
			}
			break
		}
		reread++
	}
	if reread != written {
		t.Errorf("lossless segment has %d frames, expected %d", reread, written)
	}
}

func TestDecoderCloseBeforeEOF(t *testing.T) {
	requireTools(t)

	src := filepath.Join(t.TempDir(), "src.mp4")
	makeClip(t, src, 2, 25, false)

	codec := NewCodec("ffmpeg", NewProber("ffprobe"))
	r, err := codec.Open(context.Background(), src)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("early Close should not fail: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF after Close, got %v", err)
	}
}
