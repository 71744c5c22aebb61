package jobs

import (
	"time"

	"github.com/reelworks/segfilter/internal/ffmpeg"
)

// Status represents the current state of a job
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Metrics describes a completed run. The sequential duration is derived
// from the parallel one, not measured; SequentialIsEstimate is always true.
type Metrics struct {
	ParallelDurationSeconds            float64 `json:"parallel_duration_seconds"`
	EstimatedSequentialDurationSeconds float64 `json:"estimated_sequential_duration_seconds"`
	SpeedupRatio                       float64 `json:"speedup_ratio"`
	SequentialIsEstimate               bool    `json:"sequential_is_estimate"`
	SegmentCount                       int     `json:"segment_count"`
	WorkerCount                        int     `json:"worker_count"`
	FrameCount                         int     `json:"frame_count"`
	AudioPreserved                     bool    `json:"audio_preserved"`
}

// Job is one upload and the filtering request made against it.
// Metrics and OutputPath are set only when completed; Error only when failed.
type Job struct {
	ID          string            `json:"id"`
	Status      Status            `json:"status"`
	Filename    string            `json:"filename"`    // Original upload name
	SourcePath  string            `json:"source_path"` // Owned by this job
	FilterName  string            `json:"filter_name,omitempty"`
	Analytics   *ffmpeg.Analytics `json:"analytics,omitempty"`
	Metrics     *Metrics          `json:"metrics,omitempty"`
	Error       string            `json:"error,omitempty"`
	OutputPath  string            `json:"output_path,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Copy returns a deep copy of the job, safe to hand out of the table.
func (j *Job) Copy() *Job {
	c := *j
	if j.Analytics != nil {
		a := *j.Analytics
		c.Analytics = &a
	}
	if j.Metrics != nil {
		m := *j.Metrics
		c.Metrics = &m
	}
	return &c
}

// JobEvent represents an event for SSE streaming
type JobEvent struct {
	Type string `json:"type"` // "created", "processing", "completed", "failed", "deleted"
	Job  *Job   `json:"job"`
}
