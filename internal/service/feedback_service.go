package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
)

// FeedbackStore is the persistence surface the feedback service needs
type FeedbackStore interface {
	GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error)
	InsertFeedback(ctx context.Context, fb *model.FeedbackRecord) (bool, error)
	GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error)
	UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error)
}

// FeedbackService ingests analysis results delivered by the external
// system's callback and fans the resulting row changes out to observers.
type FeedbackService struct {
	store FeedbackStore
	feed  realtime.Feed
}

// NewFeedbackService creates the feedback ingest service
func NewFeedbackService(store FeedbackStore, feed realtime.Feed) *FeedbackService {
	return &FeedbackService{store: store, feed: feed}
}

// Ingest processes one callback delivery. Redeliveries are safe: the
// feedback row is unique per video and a duplicate insert is a no-op, and
// a completed job never regresses to error.
func (s *FeedbackService) Ingest(ctx context.Context, req *model.FeedbackWebhookRequest) (*model.FeedbackWebhookResponse, error) {
	job, err := s.store.GetVideoJob(ctx, req.VideoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read video job: %w", err)
	}
	if job == nil {
		return nil, ErrVideoNotFound
	}

	if req.Status == model.VideoStatusError {
		return s.ingestError(ctx, job, req)
	}
	return s.ingestCompleted(ctx, job, req)
}

func (s *FeedbackService) ingestCompleted(ctx context.Context, job *model.VideoJob, req *model.FeedbackWebhookRequest) (*model.FeedbackWebhookResponse, error) {
	data := req.FeedbackData
	if data == nil {
		data = json.RawMessage("{}")
	}

	fb := &model.FeedbackRecord{
		ID:           uuid.New().String(),
		VideoID:      req.VideoID,
		OverallScore: req.OverallScore,
		FeedbackData: data,
	}

	inserted, err := s.store.InsertFeedback(ctx, fb)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	if inserted {
		// Insert order matters: feedback existence is the strongest
		// completion signal, so it lands before the status flip.
		s.publish(ctx, realtime.ChangeEvent{
			Type:    realtime.EventInsert,
			Table:   realtime.TableVideoFeedback,
			VideoID: req.VideoID,
			Status:  model.VideoStatusCompleted,
		})
	} else {
		log.Printf("video %s: feedback already recorded, treating delivery as duplicate", req.VideoID)
	}

	if job.Status != model.VideoStatusCompleted {
		if _, err := s.store.UpdateVideoStatus(ctx, req.VideoID, model.VideoStatusCompleted); err != nil {
			// The feedback row already carries completion; observers
			// self-heal from it even if the column lags.
			log.Printf("video %s: failed to mark completed: %v", req.VideoID, err)
		} else {
			s.publish(ctx, realtime.ChangeEvent{
				Type:    realtime.EventUpdate,
				Table:   realtime.TableVideoJobs,
				VideoID: req.VideoID,
				Status:  model.VideoStatusCompleted,
			})
		}
	}

	return &model.FeedbackWebhookResponse{
		VideoID: req.VideoID,
		Status:  model.VideoStatusCompleted,
	}, nil
}

func (s *FeedbackService) ingestError(ctx context.Context, job *model.VideoJob, req *model.FeedbackWebhookRequest) (*model.FeedbackWebhookResponse, error) {
	if job.Status == model.VideoStatusCompleted {
		// A late error report never demotes a completed job.
		log.Printf("video %s: ignoring error report for completed job", req.VideoID)
		return &model.FeedbackWebhookResponse{
			VideoID: req.VideoID,
			Status:  model.VideoStatusCompleted,
		}, nil
	}

	if req.Error != "" {
		log.Printf("video %s: analysis reported failure: %s", req.VideoID, req.Error)
	}

	if _, err := s.store.UpdateVideoStatus(ctx, req.VideoID, model.VideoStatusError); err != nil {
		return nil, fmt.Errorf("failed to mark error: %w", err)
	}

	s.publish(ctx, realtime.ChangeEvent{
		Type:    realtime.EventUpdate,
		Table:   realtime.TableVideoJobs,
		VideoID: req.VideoID,
		Status:  model.VideoStatusError,
	})

	return &model.FeedbackWebhookResponse{
		VideoID: req.VideoID,
		Status:  model.VideoStatusError,
	}, nil
}

func (s *FeedbackService) publish(ctx context.Context, event realtime.ChangeEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		log.Printf("video %s: failed to publish change event: %v", event.VideoID, err)
	}
}
