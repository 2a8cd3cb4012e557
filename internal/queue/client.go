// Package queue runs accent detection asynchronously on asynq workers and
// tracks job state in the shared cache.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/accentcoach/internal/config"
)

const (
	detectMaxRetry = 2
	detectTimeout  = 2 * time.Minute
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

// RedisOpt converts the redis settings for asynq clients and servers.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueAccentDetect schedules a detection. The job ID doubles as the asynq
// task ID so a job cannot be enqueued twice.
func (c *Client) EnqueueAccentDetect(ctx context.Context, payload AccentDetectPayload) error {
	return c.enqueue(ctx, TypeAccentDetect, payload,
		asynq.TaskID(payload.JobID),
		asynq.Queue(QueueDetection),
		asynq.MaxRetry(detectMaxRetry),
		asynq.Timeout(detectTimeout),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
