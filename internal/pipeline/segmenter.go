// Package pipeline runs one job's video through segmentation, parallel
// filtering, ordered merge and audio remux.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/media"
)

// SegmentExt is the container used for intermediate segment files.
const SegmentExt = ".mkv"

// Segment is one contiguous, index-ordered slice of a source video's frames.
type Segment struct {
	Index  int          `json:"index"`
	Path   string       `json:"path"`
	Frames int          `json:"frames"`
	Format media.Format `json:"format"`
}

// Segmenter splits a source video into fixed-duration segment files.
type Segmenter struct {
	codec    media.Codec
	duration float64
}

// NewSegmenter creates a Segmenter producing segments of duration seconds.
func NewSegmenter(codec media.Codec, duration float64) *Segmenter {
	return &Segmenter{codec: codec, duration: duration}
}

// FramesPerSegment returns round(fps * seconds), never less than one.
func FramesPerSegment(fps, seconds float64) int {
	n := int(math.Round(fps * seconds))
	if n < 1 {
		return 1
	}
	return n
}

// SegmentCount returns how many segments totalFrames splits into.
func SegmentCount(totalFrames, framesPerSegment int) int {
	if totalFrames <= 0 || framesPerSegment <= 0 {
		return 0
	}
	return (totalFrames + framesPerSegment - 1) / framesPerSegment
}

// Split reads src once and writes its frames into consecutive segment files
// under dir. Concatenating the returned segments in order reproduces the
// source frame sequence exactly; only the last segment may be short.
func (s *Segmenter) Split(ctx context.Context, src, dir string) ([]Segment, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment dir: %w", err)
	}

	r, err := s.codec.Open(ctx, src)
	if err != nil {
		return nil, unreadableSourceError(src, err)
	}
	defer r.Close()

	format := r.Format()
	if !format.Valid() {
		return nil, unreadableSourceError(src, fmt.Errorf("invalid format %s", format))
	}
	perSegment := FramesPerSegment(format.FrameRate, s.duration)

	var (
		segments []Segment
		current  *Segment
		w        media.Writer
	)
	abort := func(err error) ([]Segment, error) {
		if w != nil {
			w.Close()
		}
		return nil, err
	}
	finish := func() error {
		err := w.Close()
		w = nil
		if err != nil {
			return fmt.Errorf("failed to finalize segment %d: %w", current.Index, err)
		}
		segments = append(segments, *current)
		current = nil
		return nil
	}

	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return abort(unreadableSourceError(src, err))
		}

		if w == nil {
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
			index := len(segments)
			current = &Segment{
				Index:  index,
				Path:   filepath.Join(dir, fmt.Sprintf("segment_%04d%s", index, SegmentExt)),
				Format: format,
			}
			if w, err = s.codec.Create(ctx, current.Path, format); err != nil {
				w = nil
				return abort(fmt.Errorf("failed to create segment %d: %w", index, err))
			}
		}

		if err := w.Write(frame); err != nil {
			return abort(fmt.Errorf("failed to write segment %d: %w", current.Index, err))
		}
		current.Frames++

		if current.Frames == perSegment {
			if err := finish(); err != nil {
				return nil, err
			}
		}
	}

	if w != nil {
		if err := finish(); err != nil {
			return nil, err
		}
	}
	if len(segments) == 0 {
		return nil, unreadableSourceError(src, errors.New("no frames"))
	}

	logger.Debug("Split source",
		"source", src,
		"segments", len(segments),
		"frames_per_segment", perSegment,
		"format", format.String())
	return segments, nil
}
