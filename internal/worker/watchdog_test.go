package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
	"github.com/flowreels/api/internal/service"
)

type watchdogFakeStore struct {
	mu       sync.Mutex
	job      *model.VideoJob
	feedback *model.FeedbackRecord
	updated  []model.VideoStatus
}

func (s *watchdogFakeStore) GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return nil, nil
	}
	clone := *s.job
	return &clone, nil
}

func (s *watchdogFakeStore) GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback, nil
}

func (s *watchdogFakeStore) UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, status)
	s.job.Status = status
	s.job.UpdatedAt = time.Now()
	return s.job.UpdatedAt, nil
}

type watchdogFeed struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (f *watchdogFeed) Publish(ctx context.Context, event realtime.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *watchdogFeed) Subscribe(ctx context.Context, videoID string) (realtime.Subscription, error) {
	return nil, errors.New("not implemented")
}

func watchdogTask(t *testing.T, videoID string, updatedAt time.Time) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(service.WatchdogPayload{
		VideoID:   videoID,
		UpdatedAt: updatedAt,
	})
	require.NoError(t, err)
	return asynq.NewTask(service.TaskTypeWatchdog, payload)
}

func staleJob(videoID string) *model.VideoJob {
	stamp := time.Now().Add(-time.Hour)
	return &model.VideoJob{
		ID:        videoID,
		Status:    model.VideoStatusProcessing,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
}

func TestWatchdogMarksStaleJob(t *testing.T) {
	// The payload carries the exact updated_at the row had at enqueue time,
	// so an untouched job compares equal, not merely older.
	job := staleJob("v1")
	store := &watchdogFakeStore{job: job}
	feed := &watchdogFeed{}
	w := NewWatchdog(store, feed)

	err := w.ProcessTask(context.Background(), watchdogTask(t, "v1", job.UpdatedAt))
	require.NoError(t, err)

	assert.Equal(t, []model.VideoStatus{model.VideoStatusError}, store.updated)
	require.Len(t, feed.events, 1)
	assert.Equal(t, model.VideoStatusError, feed.events[0].Status)
}

func TestWatchdogIgnoresTerminalJob(t *testing.T) {
	job := staleJob("v2")
	job.Status = model.VideoStatusCompleted
	store := &watchdogFakeStore{job: job}
	w := NewWatchdog(store, &watchdogFeed{})

	err := w.ProcessTask(context.Background(), watchdogTask(t, "v2", time.Now().Add(-30*time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, store.updated)
}

func TestWatchdogDisarmedByRetry(t *testing.T) {
	// A retry refreshed updated_at after this task's baseline was captured.
	job := staleJob("v3")
	baseline := job.UpdatedAt
	job.UpdatedAt = baseline.Add(10 * time.Minute)
	store := &watchdogFakeStore{job: job}
	w := NewWatchdog(store, &watchdogFeed{})

	err := w.ProcessTask(context.Background(), watchdogTask(t, "v3", baseline))
	require.NoError(t, err)
	assert.Empty(t, store.updated)
}

func TestWatchdogBaselineComesFromRowClock(t *testing.T) {
	// Both sides of the staleness comparison are database timestamps. A
	// database clock trailing the application clock used to make a fresh
	// row look newer than the enqueue moment and silently disarm the
	// watchdog; with a row-clock baseline the untouched job still fires.
	job := staleJob("v5")
	store := &watchdogFakeStore{job: job}
	feed := &watchdogFeed{}
	w := NewWatchdog(store, feed)

	err := w.ProcessTask(context.Background(), watchdogTask(t, "v5", job.UpdatedAt))
	require.NoError(t, err)

	assert.Equal(t, []model.VideoStatus{model.VideoStatusError}, store.updated)
	require.Len(t, feed.events, 1)
}

func TestWatchdogDisarmedByFeedbackRow(t *testing.T) {
	store := &watchdogFakeStore{
		job:      staleJob("v4"),
		feedback: &model.FeedbackRecord{ID: "f4", VideoID: "v4"},
	}
	w := NewWatchdog(store, &watchdogFeed{})

	err := w.ProcessTask(context.Background(), watchdogTask(t, "v4", time.Now().Add(-30*time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, store.updated)
}

func TestWatchdogIgnoresMissingJob(t *testing.T) {
	store := &watchdogFakeStore{}
	w := NewWatchdog(store, &watchdogFeed{})

	err := w.ProcessTask(context.Background(), watchdogTask(t, "gone", time.Now()))
	require.NoError(t, err)
}

func TestWatchdogRejectsMalformedPayload(t *testing.T) {
	w := NewWatchdog(&watchdogFakeStore{}, &watchdogFeed{})

	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeWatchdog, []byte("not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
