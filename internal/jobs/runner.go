package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/reelworks/segfilter/internal/filter"
	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/pipeline"
)

// Processor runs one job's pipeline. *pipeline.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Outcome is delivered once per submitted task when its run has ended.
type Outcome struct {
	JobID  string
	Status Status // Status the run left the job in; empty if the job was deleted
	Err    error
}

type task struct {
	id     string
	filter filter.Filter
	done   chan Outcome
}

// Runner executes pipeline runs one at a time. Submitted tasks wait in an
// unbounded FIFO; a single goroutine takes them in order, so two jobs never
// run concurrently and each task's job state is updated exactly once.
type Runner struct {
	table     *Table
	proc      Processor
	outputDir string

	mu      sync.Mutex
	pending []task
	notify  chan struct{}
	current string
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner writing outputs to outputDir.
func NewRunner(table *Table, proc Processor, outputDir string) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		table:     table,
		proc:      proc,
		outputDir: outputDir,
		notify:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OutputPath returns where a job's filtered video is written.
func OutputPath(outputDir, id string) string {
	return filepath.Join(outputDir, id+"_processed.mp4")
}

// Start starts the execution lane
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop cancels the running task, if any, and waits for the lane to exit.
// Interrupted and still-pending jobs stay in processing and are picked up
// again by ResumeInterrupted on the next start.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.drain()
}

// Submit moves an uploaded job to processing and queues its run. It returns
// without waiting; the channel receives the run's outcome and is then closed.
func (r *Runner) Submit(id string, f filter.Filter) (<-chan Outcome, error) {
	if f.IsZero() {
		return nil, unknownFilterError("")
	}
	if _, err := r.table.StartProcessing(id, f.Name()); err != nil {
		return nil, err
	}
	return r.enqueue(id, f), nil
}

// SubmitNamed is Submit with a catalog filter name. An unknown job is
// reported before an unknown filter; either way the job is left untouched.
func (r *Runner) SubmitNamed(id, filterName string) (<-chan Outcome, error) {
	if _, err := r.table.Get(id); err != nil {
		return nil, err
	}
	f, ok := filter.Lookup(filterName)
	if !ok {
		return nil, unknownFilterError(filterName)
	}
	return r.Submit(id, f)
}

// ResumeInterrupted queues every job left in processing by a previous run
// of the service. It must be called before any new submissions. Jobs whose
// filter no longer exists are failed. It returns the number queued.
func (r *Runner) ResumeInterrupted() int {
	count := 0
	for _, job := range r.table.WithStatus(StatusProcessing) {
		f, ok := filter.Lookup(job.FilterName)
		if !ok {
			if err := r.table.Fail(job.ID, unknownFilterError(job.FilterName).Error()); err != nil {
				logger.Warn("Failed to fail interrupted job", "job_id", job.ID, "error", err)
			}
			continue
		}
		r.enqueue(job.ID, f)
		count++
	}
	if count > 0 {
		logger.Info("Resumed interrupted jobs", "count", count)
	}
	return count
}

// Pending returns the number of queued tasks not yet started.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Current returns the ID of the job being run, or "" when idle.
func (r *Runner) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Runner) enqueue(id string, f filter.Filter) <-chan Outcome {
	done := make(chan Outcome, 1)
	t := task{id: id, filter: f, done: done}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		t.cancelled()
		return done
	}
	r.pending = append(r.pending, t)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return done
}

// next pops the oldest pending task.
func (r *Runner) next() (task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return task{}, false
	}
	t := r.pending[0]
	r.pending = r.pending[1:]
	r.current = t.id
	return t, true
}

// run is the lane's main loop
func (r *Runner) run() {
	defer r.wg.Done()

	for {
		t, ok := r.next()
		if !ok {
			select {
			case <-r.ctx.Done():
				r.drain()
				return
			case <-r.notify:
				continue
			}
		}

		if r.ctx.Err() != nil {
			t.cancelled()
			r.drain()
			return
		}

		outcome := r.execute(t)

		r.mu.Lock()
		r.current = ""
		r.mu.Unlock()

		t.done <- outcome
		close(t.done)
	}
}

// drain releases every task that will never run. Their jobs stay in
// processing; later submissions are released immediately.
func (r *Runner) drain() {
	r.mu.Lock()
	r.stopped = true
	left := r.pending
	r.pending = nil
	r.current = ""
	r.mu.Unlock()

	for _, t := range left {
		t.cancelled()
	}
}

func (t task) cancelled() {
	t.done <- Outcome{JobID: t.id, Status: StatusProcessing, Err: context.Canceled}
	close(t.done)
}

// execute runs one task and records its result. Nothing escapes: pipeline
// errors and panics both end up as a failed job.
func (r *Runner) execute(t task) Outcome {
	log := logger.With("job_id", t.id)

	job, err := r.table.Get(t.id)
	if err != nil {
		log.Warn("Job deleted before its run started")
		return Outcome{JobID: t.id, Err: err}
	}

	req := pipeline.Request{
		JobID:  t.id,
		Source: job.SourcePath,
		Output: OutputPath(r.outputDir, t.id),
		Filter: t.filter,
	}

	start := time.Now()
	log.Info("Pipeline run started", "filter", t.filter.Name(), "source", job.SourcePath)
	res, err := r.safeProcess(req)

	if err != nil && r.ctx.Err() != nil {
		// Shutdown interrupted the run; leave the job in processing.
		log.Info("Pipeline run interrupted by shutdown")
		return Outcome{JobID: t.id, Status: StatusProcessing, Err: err}
	}

	if err != nil {
		log.Error("Pipeline run failed", "error", err, "elapsed", time.Since(start))
		if ferr := r.table.Fail(t.id, err.Error()); ferr != nil {
			log.Warn("Discarding failure for deleted job", "error", ferr)
			return Outcome{JobID: t.id, Err: err}
		}
		return Outcome{JobID: t.id, Status: StatusFailed, Err: err}
	}

	metrics := Metrics{
		ParallelDurationSeconds:            res.Estimate.ParallelSeconds,
		EstimatedSequentialDurationSeconds: res.Estimate.EstimatedSequentialSeconds,
		SpeedupRatio:                       res.Estimate.SpeedupRatio,
		SequentialIsEstimate:               res.Estimate.SequentialIsEstimate,
		SegmentCount:                       res.SegmentCount,
		WorkerCount:                        res.WorkerCount,
		FrameCount:                         res.Frames,
		AudioPreserved:                     res.AudioPreserved,
	}
	if cerr := r.table.Complete(t.id, res.OutputPath, metrics); cerr != nil {
		log.Warn("Discarding result for deleted job", "error", cerr)
		os.Remove(res.OutputPath)
		return Outcome{JobID: t.id, Err: cerr}
	}

	log.Info("Pipeline run completed",
		"segments", res.SegmentCount,
		"workers", res.WorkerCount,
		"speedup", res.Estimate.SpeedupRatio,
		"elapsed", time.Since(start))
	return Outcome{JobID: t.id, Status: StatusCompleted}
}

func (r *Runner) safeProcess(req pipeline.Request) (res *pipeline.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Pipeline panicked", "job_id", req.JobID, "panic", p, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("internal error: %v", p)
		}
	}()
	res, err = r.proc.Process(r.ctx, req)
	if err == nil && res == nil {
		err = errors.New("pipeline returned no result")
	}
	return res, err
}
