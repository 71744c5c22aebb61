package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelworks/segfilter/internal/filter"
	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/media"
)

// SegmentResult is a filtered segment. It keeps the index of the segment it
// was produced from.
type SegmentResult struct {
	Index   int           `json:"index"`
	Path    string        `json:"path"`
	Frames  int           `json:"frames"`
	Format  media.Format  `json:"format"`
	Elapsed time.Duration `json:"elapsed"`
}

// WorkerPool filters segments concurrently across a fixed number of workers.
// Workers share nothing but the assignment channel; each one decodes,
// filters and encodes a whole segment at a time.
type WorkerPool struct {
	codec   media.Codec
	workers int
}

// NewWorkerPool creates a pool of the given width (at least one).
func NewWorkerPool(codec media.Codec, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{codec: codec, workers: workers}
}

// Width returns the number of workers used for n segments.
func (p *WorkerPool) Width(n int) int {
	if n < p.workers {
		if n < 1 {
			return 1
		}
		return n
	}
	return p.workers
}

// Process filters every segment exactly once, writing results under dir.
// Results are returned in completion order; callers must use Index to
// restore segment order. Any failed segment fails the whole call with a
// *SegmentError, and the remaining workers stop picking up assignments.
func (p *WorkerPool) Process(ctx context.Context, segments []Segment, f filter.Filter, dir string) ([]SegmentResult, error) {
	if f.IsZero() {
		return nil, errors.New("no filter selected")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	assignments := make(chan Segment, len(segments))
	for _, seg := range segments {
		assignments <- seg
	}
	close(assignments)

	var (
		mu      sync.Mutex
		results = make([]SegmentResult, 0, len(segments))
	)

	g, gctx := errgroup.WithContext(ctx)
	width := p.Width(len(segments))
	for id := 0; id < width; id++ {
		id := id
		g.Go(func() error {
			for seg := range assignments {
				if gctx.Err() != nil {
					return nil
				}
				res, err := p.filterSegment(gctx, id, seg, f, dir)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// filterSegment runs one assignment. A panicking transform is reported as
// a segment failure instead of taking down the process.
func (p *WorkerPool) filterSegment(ctx context.Context, worker int, seg Segment, f filter.Filter, dir string) (res SegmentResult, err error) {
	start := time.Now()
	out := filepath.Join(dir, fmt.Sprintf("filtered_%04d%s", seg.Index, SegmentExt))

	var w media.Writer
	defer func() {
		if r := recover(); r != nil {
			if w != nil {
				w.Close()
			}
			err = &SegmentError{Index: seg.Index, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	r, err := p.codec.Open(ctx, seg.Path)
	if err != nil {
		return res, &SegmentError{Index: seg.Index, Err: err}
	}
	defer r.Close()

	format := r.Format()
	w, err = p.codec.Create(ctx, out, format)
	if err != nil {
		return res, &SegmentError{Index: seg.Index, Err: err}
	}

	frames := 0
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Close()
			return res, &SegmentError{Index: seg.Index, Err: err}
		}
		if err := w.Write(f.Apply(frame)); err != nil {
			w.Close()
			return res, &SegmentError{Index: seg.Index, Err: err}
		}
		frames++
	}
	if err := w.Close(); err != nil {
		return res, &SegmentError{Index: seg.Index, Err: err}
	}
	if seg.Frames > 0 && frames != seg.Frames {
		return res, &SegmentError{
			Index: seg.Index,
			Err:   fmt.Errorf("decoded %d frames, segment has %d", frames, seg.Frames),
		}
	}

	res = SegmentResult{
		Index:   seg.Index,
		Path:    out,
		Frames:  frames,
		Format:  format,
		Elapsed: time.Since(start),
	}
	logger.Debug("Filtered segment",
		"worker", worker,
		"segment", seg.Index,
		"frames", frames,
		"filter", f.Name(),
		"elapsed", res.Elapsed)
	return res, nil
}
