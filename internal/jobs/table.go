package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelworks/segfilter/internal/ffmpeg"
	"github.com/reelworks/segfilter/internal/logger"
)

// Store defines the persistence interface for job data.
// This interface is implemented by internal/store.JSONStore and
// internal/store.SQLiteStore.
type Store interface {
	SaveJob(job *Job) error
	DeleteJob(id string) error
	LoadJobs() ([]*Job, error)
	Close() error
}

// Table owns every job record. All reads and writes go through it; callers
// only ever see copies, so a reader observes a record either before or
// after a mutation and never in between.
type Table struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // Job IDs in order of creation
	store Store    // Persistence store (nil = in-memory only)

	// Subscribers for job events
	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewTable creates an in-memory job table (for testing).
// Use NewTableWithStore for production use with persistence.
func NewTable() *Table {
	return &Table{
		jobs:        make(map[string]*Job),
		order:       make([]string, 0),
		subscribers: make(map[chan JobEvent]struct{}),
	}
}

// NewTableWithStore creates a job table backed by a persistent store and
// loads every stored job into memory.
func NewTableWithStore(store Store) (*Table, error) {
	t := NewTable()
	t.store = store

	if store != nil {
		jobs, err := store.LoadJobs()
		if err != nil {
			return nil, fmt.Errorf("load jobs from store: %w", err)
		}
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		})
		for _, job := range jobs {
			t.jobs[job.ID] = job
			t.order = append(t.order, job.ID)
		}
	}

	return t, nil
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// persist saves a job to the store (if configured).
// Called with lock held.
func (t *Table) persist(job *Job) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveJob(job); err != nil {
		logger.Warn("Failed to persist job", "job_id", job.ID, "error", err)
	}
}

// persistDelete removes a job from the store (if configured).
// Called with lock held.
func (t *Table) persistDelete(id string) {
	if t.store == nil {
		return
	}
	if err := t.store.DeleteJob(id); err != nil {
		logger.Warn("Failed to delete job from store", "job_id", id, "error", err)
	}
}

// Create records a new upload in the uploaded state.
func (t *Table) Create(id, filename, sourcePath string, analytics ffmpeg.Analytics) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[id]; exists {
		return nil, fmt.Errorf("duplicate job id: %s", id)
	}

	job := &Job{
		ID:         id,
		Status:     StatusUploaded,
		Filename:   filename,
		SourcePath: sourcePath,
		Analytics:  &analytics,
		CreatedAt:  time.Now(),
	}
	t.jobs[id] = job
	t.order = append(t.order, id)

	t.persist(job)
	t.broadcast(JobEvent{Type: "created", Job: job.Copy()})

	return job.Copy(), nil
}

// Get returns a copy of a job by ID
func (t *Table) Get(id string) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, jobNotFoundError(id)
	}
	return job.Copy(), nil
}

// All returns copies of all jobs in creation order
func (t *Table) All() []*Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	jobs := make([]*Job, 0, len(t.order))
	for _, id := range t.order {
		if job, ok := t.jobs[id]; ok {
			jobs = append(jobs, job.Copy())
		}
	}
	return jobs
}

// WithStatus returns copies of the jobs in the given state, in creation order.
func (t *Table) WithStatus(status Status) []*Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var jobs []*Job
	for _, id := range t.order {
		if job, ok := t.jobs[id]; ok && job.Status == status {
			jobs = append(jobs, job.Copy())
		}
	}
	return jobs
}

// StartProcessing moves an uploaded job to processing with the chosen
// filter. Jobs in any other state are rejected with ErrInvalidState.
func (t *Table) StartProcessing(id, filterName string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, jobNotFoundError(id)
	}
	if job.Status != StatusUploaded {
		return nil, invalidStateError(id, job.Status)
	}

	job.Status = StatusProcessing
	job.FilterName = filterName
	job.StartedAt = time.Now()

	t.persist(job)
	t.broadcast(JobEvent{Type: "processing", Job: job.Copy()})

	return job.Copy(), nil
}

// Complete marks a processing job completed with its output and metrics.
func (t *Table) Complete(id, outputPath string, metrics Metrics) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusProcessing {
		return invalidStateError(id, job.Status)
	}

	job.Status = StatusCompleted
	job.OutputPath = outputPath
	job.Metrics = &metrics
	job.Error = ""
	job.CompletedAt = time.Now()

	t.persist(job)
	t.broadcast(JobEvent{Type: "completed", Job: job.Copy()})

	return nil
}

// Fail marks a processing job failed. A completed job can never fail.
func (t *Table) Fail(id, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusProcessing {
		return invalidStateError(id, job.Status)
	}

	job.Status = StatusFailed
	job.Error = errMsg
	job.OutputPath = ""
	job.Metrics = nil
	job.CompletedAt = time.Now()

	t.persist(job)
	t.broadcast(JobEvent{Type: "failed", Job: job.Copy()})

	return nil
}

// Delete removes a job record and returns what was removed. Files are the
// caller's responsibility.
func (t *Table) Delete(id string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, jobNotFoundError(id)
	}

	delete(t.jobs, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	t.persistDelete(id)
	t.broadcast(JobEvent{Type: "deleted", Job: job.Copy()})

	return job.Copy(), nil
}

// Stats contains job counts by status
type Stats struct {
	Total      int `json:"total"`
	Uploaded   int `json:"uploaded"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Stats returns job counts by status
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{Total: len(t.jobs)}
	for _, job := range t.jobs {
		switch job.Status {
		case StatusUploaded:
			stats.Uploaded++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Subscribe returns a channel that receives job events
func (t *Table) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	t.subsMu.Lock()
	t.subscribers[ch] = struct{}{}
	t.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (t *Table) Unsubscribe(ch chan JobEvent) {
	t.subsMu.Lock()
	delete(t.subscribers, ch)
	t.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers without blocking
func (t *Table) broadcast(event JobEvent) {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()

	for ch := range t.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}
