package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowreels/api/internal/model"
)

// CreateVideoJob inserts a new job row. The caller supplies the id so the
// row is observable under a known identifier before any network handoff.
func (s *Store) CreateVideoJob(ctx context.Context, job *model.VideoJob) error {
	missionsJSON, err := json.Marshal(job.Missions)
	if err != nil {
		return fmt.Errorf("failed to marshal missions: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO video_jobs (id, user_id, title, description, main_message, missions, mime_type, video_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		job.ID, job.UserID, job.Title, job.Description, job.MainMessage,
		missionsJSON, job.MimeType, job.VideoURL, string(job.Status),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video job: %w", err)
	}
	return nil
}

// GetVideoJob retrieves a job by id. Returns (nil, nil) when no row exists.
func (s *Store) GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error) {
	var job model.VideoJob
	var missionsJSON []byte
	var status string

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, main_message, missions, mime_type,
		        video_url, status, created_at, updated_at
		 FROM video_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.UserID, &job.Title, &job.Description, &job.MainMessage,
		&missionsJSON, &job.MimeType, &job.VideoURL, &status,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video job: %w", err)
	}

	job.Status = model.VideoStatus(status)
	if missionsJSON != nil {
		_ = json.Unmarshal(missionsJSON, &job.Missions)
	}

	return &job, nil
}

// ListVideoJobsByUser returns a user's jobs, newest first
func (s *Store) ListVideoJobsByUser(ctx context.Context, userID string) ([]model.VideoJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, main_message, missions, mime_type,
		        video_url, status, created_at, updated_at
		 FROM video_jobs WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list video jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.VideoJob
	for rows.Next() {
		var job model.VideoJob
		var missionsJSON []byte
		var status string
		if err := rows.Scan(&job.ID, &job.UserID, &job.Title, &job.Description,
			&job.MainMessage, &missionsJSON, &job.MimeType, &job.VideoURL,
			&status, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video job: %w", err)
		}
		job.Status = model.VideoStatus(status)
		if missionsJSON != nil {
			_ = json.Unmarshal(missionsJSON, &job.Missions)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read video jobs: %w", err)
	}

	return jobs, nil
}

// UpdateVideoStatus transitions a job's status and refreshes updated_at.
// Returns the new updated_at so callers can order subsequent checks.
func (s *Store) UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error) {
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`UPDATE video_jobs SET status = $1, updated_at = NOW() WHERE id = $2
		 RETURNING updated_at`,
		string(status), id,
	).Scan(&updatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, fmt.Errorf("video job %s not found", id)
		}
		return time.Time{}, fmt.Errorf("failed to update video status: %w", err)
	}
	return updatedAt, nil
}

// GetUserStrategy returns the user's content-strategy context used to enrich
// analysis submissions. (nil, nil) when the user has no strategy saved.
func (s *Store) GetUserStrategy(ctx context.Context, userID string) (json.RawMessage, error) {
	var strategy []byte
	err := s.pool.QueryRow(ctx,
		`SELECT strategy FROM user_strategies WHERE user_id = $1`,
		userID,
	).Scan(&strategy)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user strategy: %w", err)
	}
	return strategy, nil
}
