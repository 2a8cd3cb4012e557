// Package history persists completed accent detections in Postgres.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/accentcoach/internal/accent"
)

const (
	SourceSync = "sync"
	SourceJob  = "job"

	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("detection not found")

type Record struct {
	ID            uuid.UUID            `json:"id"`
	Source        string               `json:"source"`
	TopLabel      string               `json:"top_label"`
	Probabilities accent.Probabilities `json:"probabilities"`
	Fallback      bool                 `json:"fallback"`
	AudioBytes    int                  `json:"audio_bytes"`
	ElapsedMs     int64                `json:"elapsed_ms"`
	Subject       string               `json:"subject,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// NewRecord builds the history row for a finished detection.
func NewRecord(source, subject string, res *accent.Result, audioBytes int, elapsed time.Duration) *Record {
	rec := &Record{
		ID:            uuid.New(),
		Source:        source,
		Probabilities: res.Probabilities,
		Fallback:      res.Fallback,
		AudioBytes:    audioBytes,
		ElapsedMs:     elapsed.Milliseconds(),
		Subject:       subject,
		CreatedAt:     time.Now().UTC(),
	}
	if top, ok := res.Probabilities.Top(); ok {
		rec.TopLabel = top.Label
	}
	return rec
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, rec *Record) error {
	probs, err := json.Marshal(rec.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	var subject *string
	if rec.Subject != "" {
		subject = &rec.Subject
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO accent_detections (id, source, top_label, probabilities, fallback, audio_bytes, elapsed_ms, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Source, rec.TopLabel, probs, rec.Fallback, rec.AudioBytes, rec.ElapsedMs, subject, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert accent detection: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, source, top_label, probabilities, fallback, audio_bytes, elapsed_ms, subject, created_at
		 FROM accent_detections WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type Query struct {
	Subject string
	Limit   int
	Offset  int
}

// Recent lists detections newest first. An empty Subject lists everyone's.
func (s *Store) Recent(ctx context.Context, q Query) ([]Record, error) {
	q.Limit = ClampLimit(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := `SELECT id, source, top_label, probabilities, fallback, audio_bytes, elapsed_ms, subject, created_at
			  FROM accent_detections`
	args := []any{}
	argIdx := 1

	if q.Subject != "" {
		query += fmt.Sprintf(" WHERE subject = $%d", argIdx)
		args = append(args, q.Subject)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accent detections: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ClampLimit applies DefaultLimit to non-positive limits and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		probs   []byte
		subject *string
	)
	err := row.Scan(&rec.ID, &rec.Source, &rec.TopLabel, &probs, &rec.Fallback, &rec.AudioBytes, &rec.ElapsedMs, &subject, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan accent detection: %w", err)
	}
	if err := json.Unmarshal(probs, &rec.Probabilities); err != nil {
		return nil, fmt.Errorf("decode probabilities: %w", err)
	}
	if subject != nil {
		rec.Subject = *subject
	}
	return &rec, nil
}
