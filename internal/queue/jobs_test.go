package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/cache"
)

func newJobStore() *JobStore {
	return NewJobStore(cache.NewMemory(32, time.Minute), time.Minute)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore()

	job, err := jobs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != StatusQueued || job.ID == "" {
		t.Fatalf("unexpected new job %+v", job)
	}

	if err := jobs.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, err := jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning || got.Attempts != 1 {
		t.Fatalf("after MarkRunning: %+v", got)
	}

	var probs accent.Probabilities
	if err := json.Unmarshal([]byte(`{"British English": 75, "American English": 25}`), &probs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := jobs.Complete(ctx, job.ID, &accent.Result{Probabilities: probs}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || got.Result == nil {
		t.Fatalf("after Complete: %+v", got)
	}
	if top, _ := got.Result.Probabilities.Top(); top.Label != "British English" {
		t.Fatalf("top label = %q", top.Label)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Fatalf("CreatedAt changed: %v -> %v", job.CreatedAt, got.CreatedAt)
	}
}

func TestJobFailAndRetryClearsError(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore()
	job, _ := jobs.Create(ctx)

	if err := jobs.Fail(ctx, job.ID, errors.New("recognizer unavailable")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := jobs.Get(ctx, job.ID)
	if got.Status != StatusFailed || got.Error != "recognizer unavailable" {
		t.Fatalf("after Fail: %+v", got)
	}

	if err := jobs.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, _ = jobs.Get(ctx, job.ID)
	if got.Status != StatusRunning || got.Error != "" {
		t.Fatalf("retry should clear the error: %+v", got)
	}
}

func TestJobNotFound(t *testing.T) {
	jobs := newJobStore()
	if _, err := jobs.Get(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestUpdateRecreatesExpiredJob(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore()
	if err := jobs.Complete(ctx, "late", &accent.Result{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := jobs.Get(ctx, "late")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "late" || got.Status != StatusCompleted {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestDeleteJob(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore()
	job, _ := jobs.Create(ctx)
	if err := jobs.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := jobs.Get(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected deleted job to be gone, got %v", err)
	}
}

func TestServerConfigPrefersDetectionQueue(t *testing.T) {
	cfg := ServerConfig(4)
	if cfg.Concurrency != 4 {
		t.Fatalf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.Queues[QueueDetection] <= cfg.Queues["default"] {
		t.Fatalf("detection queue should outrank default: %v", cfg.Queues)
	}
}

func TestJobRetryKeepsJobOpen(t *testing.T) {
	ctx := context.Background()
	jobs := newJobStore()
	job, _ := jobs.Create(ctx)

	if err := jobs.Retry(ctx, job.ID, errors.New("task deadline exceeded")); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	got, _ := jobs.Get(ctx, job.ID)
	if got.Status != StatusRetrying || got.Error != "task deadline exceeded" {
		t.Fatalf("after Retry: %+v", got)
	}
}
