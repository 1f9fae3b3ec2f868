// Package worker hosts the asynq task handlers. The only scheduled task is
// the stale-job watchdog: the analysis callback is the normal completion
// path, so the watchdog exists purely as an escape hatch for jobs whose
// callback never arrives.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
	"github.com/flowreels/api/internal/service"
)

// WatchdogStore is the persistence surface the watchdog needs
type WatchdogStore interface {
	GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error)
	GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error)
	UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error)
}

// Watchdog marks jobs that stayed in processing past the analysis deadline
type Watchdog struct {
	store WatchdogStore
	feed  realtime.Feed
}

// NewWatchdog creates the watchdog task handler
func NewWatchdog(store WatchdogStore, feed realtime.Feed) *Watchdog {
	return &Watchdog{store: store, feed: feed}
}

// ProcessTask fires once per submission, after the processing timeout. It
// flips the job to error only when nothing moved since the task was
// enqueued: a completed or errored job, an existing feedback row, or a
// retry-refreshed updated_at all disarm it.
func (w *Watchdog) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.WatchdogPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal watchdog payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.store.GetVideoJob(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("failed to read video job: %w", err)
	}
	if job == nil {
		log.Printf("watchdog: video %s no longer exists", payload.VideoID)
		return nil
	}

	if job.Status != model.VideoStatusProcessing {
		return nil
	}
	if job.UpdatedAt.After(payload.UpdatedAt) {
		// Both timestamps come from the database clock, so this comparison
		// is skew-free. A newer updated_at means a retry re-armed the job
		// and its own watchdog task covers it.
		return nil
	}

	fb, err := w.store.GetFeedbackByVideoID(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("failed to read feedback: %w", err)
	}
	if fb != nil {
		// Analysis finished but the status column lagged; readers already
		// treat feedback existence as completion.
		return nil
	}

	log.Printf("watchdog: video %s stuck in processing, marking error", payload.VideoID)

	if _, err := w.store.UpdateVideoStatus(ctx, payload.VideoID, model.VideoStatusError); err != nil {
		return fmt.Errorf("failed to mark error: %w", err)
	}

	if w.feed != nil {
		if err := w.feed.Publish(ctx, realtime.ChangeEvent{
			Type:    realtime.EventUpdate,
			Table:   realtime.TableVideoJobs,
			VideoID: payload.VideoID,
			Status:  model.VideoStatusError,
		}); err != nil {
			log.Printf("watchdog: failed to publish change event for video %s: %v", payload.VideoID, err)
		}
	}

	return nil
}
