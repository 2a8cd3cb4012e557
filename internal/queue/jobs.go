package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
	"github.com/nikhilbhutani/accentcoach/internal/cache"
)

// Status is a job's lifecycle state. A retrying job failed an attempt that
// the queue will run again.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// DefaultJobTTL is how long job state stays readable after the last update.
const DefaultJobTTL = 24 * time.Hour

var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID        string         `json:"job_id"`
	Status    Status         `json:"status"`
	Result    *accent.Result `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// JobStore keeps job state in the cache so the API and the workers share it.
type JobStore struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewJobStore(store cache.Store, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobStore{store: store, ttl: ttl, now: time.Now}
}

func jobKey(id string) string {
	return cache.Key("job", id)
}

// Create registers a new queued job with a fresh ID.
func (s *JobStore) Create(ctx context.Context) (*Job, error) {
	now := s.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Set(ctx, jobKey(job.ID), job, s.ttl); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.store.Get(ctx, jobKey(id), &job); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return &job, nil
}

func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusRunning
		j.Attempts++
		j.Error = ""
	})
}

func (s *JobStore) Complete(ctx context.Context, id string, res *accent.Result) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = res
		j.Error = ""
	})
}

func (s *JobStore) Fail(ctx context.Context, id string, cause error) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = cause.Error()
	})
}

// Retry records a failed attempt that the queue will run again.
func (s *JobStore) Retry(ctx context.Context, id string, cause error) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusRetrying
		j.Error = cause.Error()
	})
}

// Delete removes a job, used when enqueueing it failed.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, jobKey(id))
}

// update applies fn to the stored job. A job whose state already expired is
// recreated so a late worker still publishes its result.
func (s *JobStore) update(ctx context.Context, id string, fn func(*Job)) error {
	job, err := s.Get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		job = &Job{ID: id, CreatedAt: s.now().UTC()}
	} else if err != nil {
		return err
	}
	fn(job)
	job.UpdatedAt = s.now().UTC()
	if err := s.store.Set(ctx, jobKey(id), job, s.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", id, err)
	}
	return nil
}
