package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowreels/api/internal/model"
)

// InsertFeedback stores the analysis result for a job. The unique constraint
// on video_id enforces at most one feedback row per job; a duplicate insert
// (webhook redelivery) is a no-op and returns inserted=false.
func (s *Store) InsertFeedback(ctx context.Context, fb *model.FeedbackRecord) (bool, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO video_feedback (id, video_id, overall_score, feedback_data)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (video_id) DO NOTHING
		 RETURNING created_at`,
		fb.ID, fb.VideoID, fb.OverallScore, []byte(fb.FeedbackData),
	).Scan(&fb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Conflict path: a feedback row already exists for this job.
			return false, nil
		}
		return false, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return true, nil
}

// GetFeedbackByVideoID retrieves the feedback row for a job.
// Returns (nil, nil) when analysis has not completed yet.
func (s *Store) GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error) {
	var fb model.FeedbackRecord
	var data []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, overall_score, feedback_data, created_at
		 FROM video_feedback WHERE video_id = $1`,
		videoID,
	).Scan(&fb.ID, &fb.VideoID, &fb.OverallScore, &data, &fb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	fb.FeedbackData = data
	return &fb, nil
}
