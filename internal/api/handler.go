package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/reelworks/segfilter"
	"github.com/reelworks/segfilter/internal/config"
	"github.com/reelworks/segfilter/internal/ffmpeg"
	"github.com/reelworks/segfilter/internal/filter"
	"github.com/reelworks/segfilter/internal/jobs"
	"github.com/reelworks/segfilter/internal/logger"
)

// Analyzer extracts upload analytics. *ffmpeg.Prober implements it.
type Analyzer interface {
	Analyze(ctx context.Context, path string) ffmpeg.Analytics
}

// Submitter starts a job's pipeline run. *jobs.Runner implements it.
type Submitter interface {
	SubmitNamed(id, filterName string) (<-chan jobs.Outcome, error)
}

// Handler provides HTTP API handlers
type Handler struct {
	table    *jobs.Table
	runner   Submitter
	analyzer Analyzer
	cfg      *config.Config
}

// NewHandler creates a new API handler
func NewHandler(table *jobs.Table, runner Submitter, analyzer Analyzer, cfg *config.Config) *Handler {
	return &Handler{
		table:    table,
		runner:   runner,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeJobError maps job table and runner errors onto status codes.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrUnknownFilter):
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("%v. Use one of: %s", err, strings.Join(filter.Names(), ", ")))
	case errors.Is(err, jobs.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Health handles GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "segfilter",
		"version": segfilter.Version,
	})
}

// UploadResponse is returned by a successful upload
type UploadResponse struct {
	JobID     string           `json:"job_id"`
	Filename  string           `json:"filename"`
	Size      int64            `json:"size"`
	Analytics ffmpeg.Analytics `json:"analytics"`
	Message   string           `json:"message"`
}

// Upload handles POST /upload. The video is either the "file" part of a
// multipart form or the raw request body, named by ?filename=.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.cfg.MaxUploadBytes
	// Leave room for multipart framing; the video itself is limited below.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

	src, filename, err := uploadSource(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filename = sanitizeFileName(filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename required")
		return
	}
	if !h.cfg.IsAllowedExtension(filename) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid file type. Only %s allowed", strings.Join(h.cfg.AllowedExtensions, ", ")))
		return
	}

	id := jobs.NewID()
	sourcePath := filepath.Join(h.cfg.UploadPath, id+"_"+filename)

	size, err := saveUpload(sourcePath, src, maxBytes)
	if err != nil {
		var tooLarge *uploadTooLargeError
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.As(err, &maxBytesErr):
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("File too large. Maximum size is %s", humanize.IBytes(uint64(maxBytes))))
		default:
			logger.Error("Failed to save upload", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save upload")
		}
		return
	}
	if size == 0 {
		os.Remove(sourcePath)
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	analytics := h.analyzer.Analyze(r.Context(), sourcePath)

	if _, err := h.table.Create(id, filename, sourcePath, analytics); err != nil {
		os.Remove(sourcePath)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("Upload saved", "job_id", id, "file", filename, "size", humanize.IBytes(uint64(size)))
	writeJSON(w, http.StatusOK, UploadResponse{
		JobID:     id,
		Filename:  filename,
		Size:      size,
		Analytics: analytics,
		Message:   "Video uploaded successfully",
	})
}

// uploadSource returns the reader holding the video and its client-side name.
func uploadSource(r *http.Request) (io.Reader, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		name := r.URL.Query().Get("filename")
		if name == "" {
			name = "upload.mp4"
		}
		return r.Body, name, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("invalid multipart upload: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errors.New("video file is required in form field \"file\"")
		}
		if err != nil {
			return nil, "", fmt.Errorf("invalid multipart upload: %w", err)
		}
		if part.FormName() == "file" {
			return part, part.FileName(), nil
		}
		part.Close()
	}
}

type uploadTooLargeError struct {
	limit int64
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.limit)
}

// saveUpload streams src into path, removing the file again if it exceeds
// maxBytes or the copy fails.
func saveUpload(path string, src io.Reader, maxBytes int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, io.LimitReader(src, maxBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxBytes {
		err = &uploadTooLargeError{limit: maxBytes}
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// sanitizeFileName reduces a client-supplied name to a safe base name.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// ProcessRequest is the request body for starting a pipeline run
type ProcessRequest struct {
	JobID      string `json:"job_id"`
	FilterName string `json:"filter_name"`
	FilterType string `json:"filter_type"` // accepted alias for filter_name
}

// Process handles POST /process
// Responds immediately; the run happens on the runner lane and is observed
// through /status or /events.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id required")
		return
	}
	if req.FilterName == "" {
		req.FilterName = req.FilterType
	}

	if _, err := h.runner.SubmitNamed(req.JobID, req.FilterName); err != nil {
		writeJobError(w, err)
		return
	}

	logger.Info("Processing requested", "job_id", req.JobID, "filter", req.FilterName)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":     "Processing started",
		"job_id":      req.JobID,
		"filter_name": req.FilterName,
	})
}

// Status handles GET /status/{id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.table.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Download handles GET /download/{id}
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	job, err := h.table.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}

	if job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Video not ready. Current status: %s", job.Status))
		return
	}

	if job.OutputPath == "" {
		writeMissingOutput(w, job)
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		writeMissingOutput(w, job)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(job.OutputPath)}))
	http.ServeFile(w, r, job.OutputPath)
}

// writeMissingOutput reports a completed job whose output is gone. This is
// an integrity failure and is never retried.
func writeMissingOutput(w http.ResponseWriter, job *jobs.Job) {
	logger.Error("Output file missing for completed job", "job_id", job.ID, "path", job.OutputPath)
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "Output file not found",
		"code":  "missing_output_file",
	})
}

// Cleanup handles DELETE /cleanup/{id}
// A run still in flight for the job is not interrupted; its result is
// discarded when it finishes.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	job, err := h.table.Delete(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}

	for _, path := range []string{job.SourcePath, job.OutputPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove job file", "job_id", job.ID, "path", path, "error", err)
		}
	}

	logger.Info("Job cleaned up", "job_id", job.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job cleaned up successfully"})
}

// Filters handles GET /filters
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters": filter.Names(),
	})
}

// ListJobs handles GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.table.All(),
		"stats": h.table.Stats(),
	})
}
