package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/segfilter/internal/media"
	"github.com/reelworks/segfilter/internal/media/mediatest"
)

var testFormat = media.Format{Width: 8, Height: 6, FrameRate: 10}

func writeSource(t *testing.T, format media.Format, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.raw")
	require.NoError(t, mediatest.WriteVideo(path, format, frames))
	return path
}

func TestFramesPerSegment(t *testing.T) {
	tests := []struct {
		fps, seconds float64
		want         int
	}{
		{30, 10, 300},
		{29.97, 10, 300},
		{25, 2, 50},
		{10, 0.04, 1},
		{10, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FramesPerSegment(tt.fps, tt.seconds), "fps=%v seconds=%v", tt.fps, tt.seconds)
	}
}

func TestSegmentCount(t *testing.T) {
	assert.Equal(t, 0, SegmentCount(0, 10))
	assert.Equal(t, 1, SegmentCount(9, 10))
	assert.Equal(t, 1, SegmentCount(10, 10))
	assert.Equal(t, 3, SegmentCount(25, 10))
}

func TestSplitFrameCounts(t *testing.T) {
	// 10 fps with 1s segments means 10 frames per segment.
	tests := []struct {
		name      string
		frames    int
		wantCount int
		wantLast  int
	}{
		{"single short segment", 3, 1, 3},
		{"exact multiple", 30, 3, 10},
		{"remainder", 25, 3, 5},
		{"one frame over", 11, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeSource(t, testFormat, tt.frames)
			s := NewSegmenter(mediatest.NewRawCodec(), 1)

			segments, err := s.Split(context.Background(), src, t.TempDir())
			require.NoError(t, err)
			require.Len(t, segments, tt.wantCount)
			assert.Equal(t, SegmentCount(tt.frames, 10), len(segments))

			sum := 0
			for i, seg := range segments {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, testFormat, seg.Format)
				if i < len(segments)-1 {
					assert.Equal(t, 10, seg.Frames)
				}
				sum += seg.Frames
			}
			assert.Equal(t, tt.frames, sum)
			assert.Equal(t, tt.wantLast, segments[len(segments)-1].Frames)
		})
	}
}

func TestSplitPreservesFrameOrder(t *testing.T) {
	src := writeSource(t, testFormat, 23)
	segments, err := NewSegmenter(mediatest.NewRawCodec(), 1).Split(context.Background(), src, t.TempDir())
	require.NoError(t, err)

	var ids []int
	for _, seg := range segments {
		segIDs, err := mediatest.FrameIDs(seg.Path)
		require.NoError(t, err)
		assert.Len(t, segIDs, seg.Frames)
		ids = append(ids, segIDs...)
	}

	want := make([]int, 23)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, ids)
}

func TestSplitUnreadableSource(t *testing.T) {
	codec := mediatest.NewRawCodec()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewSegmenter(codec, 1).Split(context.Background(), "/nonexistent/source.raw", t.TempDir())
		assert.ErrorIs(t, err, ErrUnreadableSource)
	})

	t.Run("zero frame rate", func(t *testing.T) {
		src := writeSource(t, media.Format{Width: 4, Height: 4, FrameRate: 0}, 5)
		_, err := NewSegmenter(codec, 1).Split(context.Background(), src, t.TempDir())
		assert.ErrorIs(t, err, ErrUnreadableSource)
	})

	t.Run("no frames", func(t *testing.T) {
		src := writeSource(t, testFormat, 0)
		_, err := NewSegmenter(codec, 1).Split(context.Background(), src, t.TempDir())
		assert.ErrorIs(t, err, ErrUnreadableSource)
	})
}

func TestSplitCreateFailure(t *testing.T) {
	src := writeSource(t, testFormat, 15)
	codec := mediatest.NewRawCodec()
	codec.CreateErr = func(path string) error {
		if filepath.Base(path) == "segment_0001"+SegmentExt {
			return mediatest.ErrInjected
		}
		return nil
	}

	_, err := NewSegmenter(codec, 1).Split(context.Background(), src, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, mediatest.ErrInjected))
}
