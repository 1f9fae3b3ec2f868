package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/flowreels/api/internal/client"
	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
)

const TaskTypeWatchdog = "video:watchdog"

// Sentinel errors mapped to response codes at the handler boundary
var (
	ErrVideoNotFound    = errors.New("video not found")
	ErrFeedbackNotReady = errors.New("feedback not ready")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTransmission     = errors.New("transmission failed")
)

// VideoStore is the persistence surface the video service needs
type VideoStore interface {
	CreateVideoJob(ctx context.Context, job *model.VideoJob) error
	GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error)
	ListVideoJobsByUser(ctx context.Context, userID string) ([]model.VideoJob, error)
	UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error)
	GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error)
	GetUserStrategy(ctx context.Context, userID string) (json.RawMessage, error)
}

// Resubmitter is the extension point for retry semantics beyond the status
// reset. Whether retry should re-transmit the stored asset is an open
// product question; the default wiring passes none, so retry only re-arms
// observation and the watchdog.
type Resubmitter interface {
	Resubmit(ctx context.Context, job *model.VideoJob) error
}

// VideoService implements the upload submitter and the retry controller
type VideoService struct {
	store             VideoStore
	storage           client.StorageClient
	analysis          client.AnalysisSubmitter
	feed              realtime.Feed
	asynqClient       *asynq.Client
	resubmitter       Resubmitter
	processingTimeout time.Duration
}

// NewVideoService creates the video service. storage, analysis transport and
// asynqClient may be nil; the service then falls back to mock URLs, a mock
// handoff, and no watchdog respectively.
func NewVideoService(store VideoStore, storage client.StorageClient, analysis client.AnalysisSubmitter, feed realtime.Feed, asynqClient *asynq.Client, processingTimeout time.Duration) *VideoService {
	if processingTimeout <= 0 {
		processingTimeout = 30 * time.Minute
	}
	return &VideoService{
		store:             store,
		storage:           storage,
		analysis:          analysis,
		feed:              feed,
		asynqClient:       asynqClient,
		processingTimeout: processingTimeout,
	}
}

// SetResubmitter installs the retry extension point
func (s *VideoService) SetResubmitter(r Resubmitter) {
	s.resubmitter = r
}

// SubmitInput carries a validated-at-the-edge reel submission
type SubmitInput struct {
	UserID      string
	Title       string
	Description string
	MainMessage string
	Missions    []model.Mission
	MimeType    string
	FileName    string
	Size        int64
	Video       io.ReadSeeker
}

// Submit validates the input, persists the job in processing BEFORE any
// network call, stores the asset, and hands the reel off to the analysis
// webhook. The handoff outcome is the only thing the caller awaits;
// analysis completion arrives later through the feedback webhook.
func (s *VideoService) Submit(ctx context.Context, input *SubmitInput) (*model.VideoJob, error) {
	if err := validateSubmit(input); err != nil {
		return nil, err
	}

	videoID := uuid.New().String()
	key := fmt.Sprintf("reels/%s/%s%s", input.UserID, videoID, filepath.Ext(input.FileName))

	job := &model.VideoJob{
		ID:          videoID,
		UserID:      input.UserID,
		Title:       input.Title,
		Description: input.Description,
		MainMessage: input.MainMessage,
		Missions:    input.Missions,
		MimeType:    input.MimeType,
		VideoURL:    s.assetURL(key, input.UserID, videoID),
		Status:      model.VideoStatusProcessing,
	}

	// Persist first so the job is observable even if transmission fails.
	if err := s.store.CreateVideoJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create video job: %w", err)
	}

	if s.storage != nil {
		if _, err := s.storage.Upload(ctx, key, input.Video, input.MimeType); err != nil {
			// The webhook receives the bytes directly; losing the stored
			// copy degrades replay, not the pipeline.
			log.Printf("video %s: asset upload failed: %v", videoID, err)
		}
		if _, err := input.Video.Seek(0, io.SeekStart); err != nil {
			return nil, s.failTransmission(ctx, videoID, fmt.Errorf("failed to rewind asset: %w", err))
		}
	}

	strategy, err := s.store.GetUserStrategy(ctx, input.UserID)
	if err != nil {
		// Enrichment is optional; submit without it.
		log.Printf("video %s: strategy lookup failed: %v", videoID, err)
		strategy = nil
	}

	if err := s.transmit(ctx, job, input, strategy); err != nil {
		return nil, s.failTransmission(ctx, videoID, err)
	}

	s.scheduleWatchdog(videoID, job.UpdatedAt)
	return job, nil
}

func validateSubmit(input *SubmitInput) error {
	if input.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.MainMessage == "" {
		return fmt.Errorf("%w: mainMessage is required", ErrInvalidInput)
	}
	if len(input.Missions) == 0 {
		return fmt.Errorf("%w: at least one mission is required", ErrInvalidInput)
	}
	for _, m := range input.Missions {
		if !model.IsValidMission(m) {
			return fmt.Errorf("%w: unknown mission %q", ErrInvalidInput, m)
		}
	}
	if input.Video == nil {
		return fmt.Errorf("%w: video file is required", ErrInvalidInput)
	}
	return nil
}

func (s *VideoService) assetURL(key, userID, videoID string) string {
	if s.storage != nil {
		return s.storage.GetPublicURL(key)
	}
	return fmt.Sprintf("https://cdn.flowreels.app/reels/%s/%s", userID, videoID)
}

func (s *VideoService) transmit(ctx context.Context, job *model.VideoJob, input *SubmitInput, strategy json.RawMessage) error {
	if s.analysis == nil || !s.analysis.IsConfigured() {
		// No webhook configured: accept the handoff so local development
		// works end to end; the feedback webhook can still be driven by hand.
		log.Printf("video %s: analysis webhook not configured, skipping handoff", job.ID)
		return nil
	}

	missions := make([]string, len(input.Missions))
	for i, m := range input.Missions {
		missions[i] = string(m)
	}

	_, err := s.analysis.Submit(ctx, &client.AnalysisRequest{
		VideoID:         job.ID,
		UserID:          input.UserID,
		Title:           input.Title,
		Description:     input.Description,
		Missions:        missions,
		MainMessage:     input.MainMessage,
		MimeType:        input.MimeType,
		FileName:        input.FileName,
		UserMissionData: strategy,
		Video:           input.Video,
	})
	return err
}

// failTransmission records the terminal error state and wraps the cause.
// The root cause is logged; callers surface only a retry-capable message.
func (s *VideoService) failTransmission(ctx context.Context, videoID string, cause error) error {
	log.Printf("video %s: handoff failed: %v", videoID, cause)
	if _, err := s.store.UpdateVideoStatus(ctx, videoID, model.VideoStatusError); err != nil {
		log.Printf("video %s: failed to record error status: %v", videoID, err)
	}
	s.publish(ctx, realtime.ChangeEvent{
		Type:    realtime.EventUpdate,
		Table:   realtime.TableVideoJobs,
		VideoID: videoID,
		Status:  model.VideoStatusError,
	})
	return fmt.Errorf("%w: %v", ErrTransmission, cause)
}

// Status returns a one-shot status read. A job with an existing feedback
// row is reported completed even if the status column has not caught up.
func (s *VideoService) Status(ctx context.Context, videoID string) (*model.VideoStatusResponse, error) {
	job, err := s.store.GetVideoJob(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read video job: %w", err)
	}
	if job == nil {
		return nil, ErrVideoNotFound
	}

	fb, err := s.store.GetFeedbackByVideoID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}

	status := job.Status
	if fb != nil {
		status = model.VideoStatusCompleted
	}

	return &model.VideoStatusResponse{
		VideoID:           job.ID,
		Status:            status,
		FeedbackAvailable: fb != nil,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}, nil
}

// Feedback returns the analysis result for a completed job
func (s *VideoService) Feedback(ctx context.Context, videoID string) (*model.FeedbackRecord, error) {
	job, err := s.store.GetVideoJob(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read video job: %w", err)
	}
	if job == nil {
		return nil, ErrVideoNotFound
	}

	fb, err := s.store.GetFeedbackByVideoID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	if fb == nil {
		return nil, ErrFeedbackNotReady
	}
	return fb, nil
}

// List returns a user's jobs for the history view
func (s *VideoService) List(ctx context.Context, userID string) (*model.VideoListResponse, error) {
	jobs, err := s.store.ListVideoJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list video jobs: %w", err)
	}
	return &model.VideoListResponse{Videos: jobs, Total: len(jobs)}, nil
}

// Retry resets an errored job to processing and re-arms observation. On a
// processing or completed job it is a no-op: nothing is mutated and
// Applied is false. It never re-transmits the asset itself; that is the
// Resubmitter's call.
func (s *VideoService) Retry(ctx context.Context, videoID string) (*model.VideoRetryResponse, error) {
	job, err := s.store.GetVideoJob(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to read video job: %w", err)
	}
	if job == nil {
		return nil, ErrVideoNotFound
	}

	if job.Status != model.VideoStatusError {
		return &model.VideoRetryResponse{
			VideoID: videoID,
			Status:  job.Status,
			Applied: false,
		}, nil
	}

	updatedAt, err := s.store.UpdateVideoStatus(ctx, videoID, model.VideoStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to reset video status: %w", err)
	}

	s.publish(ctx, realtime.ChangeEvent{
		Type:    realtime.EventUpdate,
		Table:   realtime.TableVideoJobs,
		VideoID: videoID,
		Status:  model.VideoStatusProcessing,
	})

	s.scheduleWatchdog(videoID, updatedAt)

	if s.resubmitter != nil {
		if err := s.resubmitter.Resubmit(ctx, job); err != nil {
			log.Printf("video %s: resubmission failed: %v", videoID, err)
		}
	}

	return &model.VideoRetryResponse{
		VideoID: videoID,
		Status:  model.VideoStatusProcessing,
		Applied: true,
	}, nil
}

func (s *VideoService) publish(ctx context.Context, event realtime.ChangeEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		// Events are a redundancy channel; polling self-heals.
		log.Printf("video %s: failed to publish change event: %v", event.VideoID, err)
	}
}

// WatchdogPayload is the asynq task payload for stale-job detection.
// UpdatedAt is the row's updated_at at enqueue time, taken from the
// database clock so the staleness comparison never crosses clock domains.
type WatchdogPayload struct {
	VideoID   string    `json:"videoId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *VideoService) scheduleWatchdog(videoID string, updatedAt time.Time) {
	if s.asynqClient == nil {
		return
	}

	payload, err := json.Marshal(WatchdogPayload{
		VideoID:   videoID,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		log.Printf("video %s: failed to marshal watchdog payload: %v", videoID, err)
		return
	}

	task := asynq.NewTask(TaskTypeWatchdog, payload)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("watchdog"),
		asynq.ProcessIn(s.processingTimeout),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		log.Printf("video %s: failed to schedule watchdog: %v", videoID, err)
	}
}
