package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/auth"
	"github.com/nikhilbhutani/accentcoach/internal/history"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
)

const (
	audioField        = "audio"
	diagnosticsHeader = "X-Accent-Diagnostics"
)

type Detector interface {
	Detect(ctx context.Context, raw []byte) (*accent.Result, error)
	Candidates() []accent.Candidate
}

type HistoryStore interface {
	Save(ctx context.Context, rec *history.Record) error
	Recent(ctx context.Context, q history.Query) ([]history.Record, error)
}

type JobEnqueuer interface {
	EnqueueAccentDetect(ctx context.Context, payload queue.AccentDetectPayload) error
}

type AccentHandler struct {
	detector  Detector
	maxUpload int64
	history   HistoryStore
	jobs      *queue.JobStore
	enqueuer  JobEnqueuer
}

type AccentOption func(*AccentHandler)

// WithHistory persists every synchronous detection.
func WithHistory(h HistoryStore) AccentOption {
	return func(a *AccentHandler) { a.history = h }
}

// WithJobs enables the asynchronous job endpoints.
func WithJobs(jobs *queue.JobStore, enq JobEnqueuer) AccentOption {
	return func(a *AccentHandler) {
		a.jobs = jobs
		a.enqueuer = enq
	}
}

func NewAccentHandler(d Detector, maxUpload int64, opts ...AccentOption) *AccentHandler {
	h := &AccentHandler{detector: d, maxUpload: maxUpload}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Detect runs a synchronous detection on the multipart "audio" upload and
// returns the ranked probability map.
func (h *AccentHandler) Detect(w http.ResponseWriter, r *http.Request) {
	raw, ok := readAudioUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	start := time.Now()
	res, err := h.detector.Detect(r.Context(), raw)
	if err != nil {
		writeDetectError(w, err)
		return
	}

	if h.history != nil {
		rec := history.NewRecord(history.SourceSync, auth.SubjectFromContext(r.Context()), res, len(raw), time.Since(start))
		if err := h.history.Save(r.Context(), rec); err != nil {
			slog.Warn("failed to save detection history", "error", err)
		}
	}

	if debug, _ := strconv.ParseBool(r.URL.Query().Get("debug")); debug {
		if diag, err := json.Marshal(res.Candidates); err == nil {
			w.Header().Set(diagnosticsHeader, string(diag))
		}
	}
	writeJSON(w, http.StatusOK, res.Probabilities)
}

// CreateJob accepts the same upload as Detect and returns 202 with a job ID.
func (h *AccentHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "async detection is not available")
		return
	}
	raw, ok := readAudioUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	job, err := h.jobs.Create(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	err = h.enqueuer.EnqueueAccentDetect(r.Context(), queue.AccentDetectPayload{
		JobID:   job.ID,
		Subject: auth.SubjectFromContext(r.Context()),
		Audio:   raw,
	})
	if err != nil {
		if derr := h.jobs.Delete(r.Context(), job.ID); derr != nil {
			slog.Warn("failed to remove unqueued job", "job_id", job.ID, "error", derr)
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

func (h *AccentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async detection is not available")
		return
	}
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *AccentHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"candidates": h.detector.Candidates()})
}

// History lists past detections. Authenticated callers only see their own.
func (h *AccentHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "detection history is not available")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.history.Recent(r.Context(), history.Query{
		Subject: auth.SubjectFromContext(r.Context()),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": records})
}

// readAudioUpload extracts the "audio" part, writing the error response
// itself when it returns false.
func readAudioUpload(w http.ResponseWriter, r *http.Request, maxUpload int64) ([]byte, bool) {
	if maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	}
	file, header, err := r.FormFile(audioField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("audio upload exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "multipart field \"audio\" is required")
		return nil, false
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "audio/") {
		writeError(w, http.StatusBadRequest, "File must be an audio file")
		return nil, false
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read audio upload")
		return nil, false
	}
	return raw, true
}

func writeDetectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("accent detection abandoned", "error", err)
		writeError(w, http.StatusServiceUnavailable, "accent detection was canceled")
	default:
		slog.Error("accent detection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "accent detection failed: "+err.Error())
	}
}
