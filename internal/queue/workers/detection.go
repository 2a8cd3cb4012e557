// Package workers holds the asynq task handlers run by cmd/worker.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/audio"
	"github.com/nikhilbhutani/accentcoach/internal/history"
	"github.com/nikhilbhutani/accentcoach/internal/queue"
)

type Detector interface {
	Detect(ctx context.Context, raw []byte) (*accent.Result, error)
}

// HistorySaver is optional; a nil saver skips persistence.
type HistorySaver interface {
	Save(ctx context.Context, rec *history.Record) error
}

type DetectionWorker struct {
	detector  Detector
	jobs      *queue.JobStore
	history   HistorySaver
	willRetry func(ctx context.Context) bool
}

func NewDetectionWorker(detector Detector, jobs *queue.JobStore, hist HistorySaver) *DetectionWorker {
	return &DetectionWorker{
		detector:  detector,
		jobs:      jobs,
		history:   hist,
		willRetry: willRetry,
	}
}

// willRetry reports whether asynq schedules another attempt after the
// current one fails.
func willRetry(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried < maxRetry
}

func (w *DetectionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.AccentDetectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("payload has no job id: %w", asynq.SkipRetry)
	}

	log := slog.With("job_id", payload.JobID, "audio_bytes", len(payload.Audio))
	log.Info("running accent detection job")

	if err := w.jobs.MarkRunning(ctx, payload.JobID); err != nil {
		return err
	}

	start := time.Now()
	res, err := w.detector.Detect(ctx, payload.Audio)
	if err != nil {
		return w.fail(ctx, log, payload.JobID, err)
	}

	if err := w.jobs.Complete(ctx, payload.JobID, res); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if w.history != nil {
		rec := history.NewRecord(history.SourceJob, payload.Subject, res, len(payload.Audio), elapsed)
		if err := w.history.Save(ctx, rec); err != nil {
			log.Warn("failed to save detection history", "error", err)
		}
	}

	log.Info("accent detection job completed", "fallback", res.Fallback, "elapsed", elapsed)
	return nil
}

// fail records the failure on the job. Bad audio never succeeds on retry, so
// it is not retried; other failures leave the job retrying while asynq has
// attempts left.
func (w *DetectionWorker) fail(ctx context.Context, log *slog.Logger, jobID string, cause error) error {
	permanent := errors.Is(cause, audio.ErrUnsupportedFormat) || errors.Is(cause, accent.ErrAggregation)
	retrying := !permanent && w.willRetry(ctx)
	log.Error("accent detection job failed", "error", cause, "retrying", retrying)

	// The task context may be the reason for the failure; record with a fresh one.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	record := w.jobs.Fail
	if retrying {
		record = w.jobs.Retry
	}
	if err := record(recordCtx, jobID, cause); err != nil {
		log.Warn("failed to record job failure", "error", err)
	}

	if permanent {
		return fmt.Errorf("detect accent: %w: %w", cause, asynq.SkipRetry)
	}
	return fmt.Errorf("detect accent: %w", cause)
}
