package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/media"
)

// Merger concatenates filtered segments into one output video.
type Merger struct {
	codec media.Codec
}

// NewMerger creates a Merger.
func NewMerger(codec media.Codec) *Merger {
	return &Merger{codec: codec}
}

// SortByIndex orders results by segment index.
func SortByIndex(results []SegmentResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})
}

// Merge writes every frame of every result to out in segment index order,
// whatever order results arrive in. The lowest-index result defines the
// output geometry and frame rate; frames of any other size are resized to
// it. It returns the number of frames written. On failure out is removed.
func (m *Merger) Merge(ctx context.Context, results []SegmentResult, out string) (int, error) {
	if len(results) == 0 {
		return 0, ErrEmptyMergeSet
	}

	ordered := make([]SegmentResult, len(results))
	copy(ordered, results)
	SortByIndex(ordered)

	first, err := m.codec.Open(ctx, ordered[0].Path)
	if err != nil {
		return 0, mergeError(ordered[0].Index, err)
	}
	format := first.Format()

	w, err := m.codec.Create(ctx, out, format)
	if err != nil {
		first.Close()
		return 0, mergeError(ordered[0].Index, err)
	}

	total := 0
	fail := func(err error) (int, error) {
		w.Close()
		os.Remove(out)
		return 0, err
	}

	for i, res := range ordered {
		var r media.Reader
		if i == 0 {
			r = first
		} else if r, err = m.codec.Open(ctx, res.Path); err != nil {
			return fail(mergeError(res.Index, err))
		}

		n, err := m.appendFrames(w, r, format)
		r.Close()
		if err != nil {
			return fail(mergeError(res.Index, err))
		}
		total += n
	}

	if err := w.Close(); err != nil {
		os.Remove(out)
		return 0, mergeError(ordered[len(ordered)-1].Index, err)
	}

	logger.Debug("Merged segments", "segments", len(ordered), "frames", total, "output", out)
	return total, nil
}

func (m *Merger) appendFrames(w media.Writer, r media.Reader, format media.Format) (int, error) {
	n := 0
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if !format.SameGeometry(frame) {
			frame = imaging.Resize(frame, format.Width, format.Height, imaging.Lanczos)
		}
		if err := w.Write(frame); err != nil {
			return n, err
		}
		n++
	}
}
