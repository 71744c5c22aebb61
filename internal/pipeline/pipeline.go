package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/reelworks/segfilter/internal/filter"
	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/media"
)

// AudioTrack extracts a source's audio before filtering and puts it back
// afterwards. Both steps are best-effort.
type AudioTrack interface {
	Extract(ctx context.Context, src, dir string) (path string, ok bool)
	Remux(ctx context.Context, video, audio, out string) error
}

// Options configures a Pipeline.
type Options struct {
	Codec media.Codec
	// Audio may be nil, in which case outputs are always video-only.
	Audio AudioTrack
	// SegmentDuration is the segment length in seconds.
	SegmentDuration float64
	// Workers is the segment pool width.
	Workers int
	// WorkDir is the parent of each run's transient directory.
	WorkDir string
}

// Pipeline runs segmentation, parallel filtering, ordered merge, audio remux
// and estimation for one request at a time per call.
type Pipeline struct {
	segmenter *Segmenter
	pool      *WorkerPool
	merger    *Merger
	audio     AudioTrack
	workDir   string
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		segmenter: NewSegmenter(opts.Codec, opts.SegmentDuration),
		pool:      NewWorkerPool(opts.Codec, opts.Workers),
		merger:    NewMerger(opts.Codec),
		audio:     opts.Audio,
		workDir:   opts.WorkDir,
	}
}

// Request is one pipeline run.
type Request struct {
	JobID  string
	Source string
	Output string
	Filter filter.Filter
}

// Result describes a successful run.
type Result struct {
	OutputPath     string
	Frames         int
	SegmentCount   int
	WorkerCount    int
	AudioPreserved bool
	Estimate       Estimate
}

// Process runs the whole pipeline for req. Transient files live in a
// per-run directory under the work dir that is removed before Process
// returns, whether it succeeds or not. Segmentation, filtering and merge
// failures are fatal; audio failures only clear AudioPreserved.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	if req.Filter.IsZero() {
		return nil, errors.New("no filter selected")
	}
	log := logger.With("job_id", req.JobID)

	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	runDir, err := os.MkdirTemp(p.workDir, "run-"+req.JobID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Warn("Failed to remove run dir", "dir", runDir, "error", err)
		}
	}()

	var (
		audioPath string
		hasAudio  bool
	)
	if p.audio != nil {
		audioPath, hasAudio = p.audio.Extract(ctx, req.Source, runDir)
	}
	log.Info("Audio extraction finished", "has_audio", hasAudio)

	segments, err := p.segmenter.Split(ctx, req.Source, filepath.Join(runDir, "segments"))
	if err != nil {
		return nil, err
	}
	width := p.pool.Width(len(segments))
	log.Info("Split source", "segments", len(segments), "workers", width)

	start := time.Now()
	results, err := p.pool.Process(ctx, segments, req.Filter, filepath.Join(runDir, "filtered"))
	if err != nil {
		return nil, err
	}
	parallel := time.Since(start)
	log.Info("Filtered segments", "filter", req.Filter.Name(), "elapsed", parallel)

	merged := filepath.Join(runDir, "merged"+filepath.Ext(req.Output))
	frames, err := p.merger.Merge(ctx, results, merged)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(req.Output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	audioPreserved := false
	if hasAudio {
		if err := p.audio.Remux(ctx, merged, audioPath, req.Output); err != nil {
			log.Warn("Remux failed, keeping video-only output", "error", err)
		} else {
			audioPreserved = true
		}
	}
	if !audioPreserved {
		if err := moveFile(merged, req.Output); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMergeIOFailure, err)
		}
	}

	est := NewEstimate(parallel, width, len(segments))
	if info, err := os.Stat(req.Output); err == nil {
		log.Info("Pipeline finished",
			"frames", frames,
			"output_size", humanize.Bytes(uint64(info.Size())),
			"speedup", est.SpeedupRatio,
			"audio_preserved", audioPreserved)
	}

	return &Result{
		OutputPath:     req.Output,
		Frames:         frames,
		SegmentCount:   len(segments),
		WorkerCount:    width,
		AudioPreserved: audioPreserved,
		Estimate:       est,
	}, nil
}

// moveFile renames src to dst, copying when they are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
