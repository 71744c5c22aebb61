package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/reelworks/segfilter/internal/jobs"
	"github.com/reelworks/segfilter/internal/logger"
)

// JSONStore keeps every job in one JSON object keyed by job ID and rewrites
// the whole file on each mutation. Writes go to a temporary file that is
// renamed over the original, so the file on disk is always complete.
type JSONStore struct {
	mu   sync.Mutex
	path string
	jobs map[string]*jobs.Job
}

// NewJSONStore opens or creates the job file at path. A missing file is an
// empty table. An unreadable one is renamed to .corrupt and also treated as
// empty, so a damaged file never prevents startup.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &JSONStore{path: path, jobs: make(map[string]*jobs.Job)}

	loaded, err := readJSONJobs(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		corruptPath := path + ".corrupt"
		if rerr := os.Rename(path, corruptPath); rerr != nil {
			logger.Error("Failed to rename corrupt job file", "error", rerr)
		} else {
			logger.Warn("Renamed corrupt job file, starting with no jobs", "path", corruptPath, "error", err)
		}
	default:
		s.jobs = loaded
	}

	return s, nil
}

// readJSONJobs parses a job file. An empty file holds no jobs.
func readJSONJobs(path string) (map[string]*jobs.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*jobs.Job)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for id, job := range out {
		if job == nil {
			delete(out, id)
			continue
		}
		job.ID = id
	}
	return out, nil
}

// SaveJob persists a job, replacing any existing record with the same ID.
func (s *JSONStore) SaveJob(job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Copy()
	return s.writeLocked()
}

// DeleteJob removes a job by ID. Deleting an unknown ID is not an error.
func (s *JSONStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return nil
	}
	delete(s.jobs, id)
	return s.writeLocked()
}

// LoadJobs returns copies of all stored jobs.
func (s *JSONStore) LoadJobs() ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Copy())
	}
	return out, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStore) Close() error {
	return nil
}

// Path returns the job file path.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) writeLocked() error {
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write jobs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write jobs: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace job file: %w", err)
	}
	return nil
}
