// Package realtime delivers row-level change events for video jobs to
// in-process observers. Channels are scoped per video id so concurrent
// observations of different jobs never cross-talk.
package realtime

import (
	"context"

	"github.com/flowreels/api/internal/model"
)

// Change event types
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

// Change feed tables
const (
	TableVideoJobs     = "video_jobs"
	TableVideoFeedback = "video_feedback"
)

// ChangeEvent describes one row-level mutation relevant to a video job:
// an UPDATE on its video_jobs row or an INSERT on its feedback row.
type ChangeEvent struct {
	Type    string            `json:"type"`
	Table   string            `json:"table"`
	VideoID string            `json:"videoId"`
	Status  model.VideoStatus `json:"status,omitempty"`
}

// Subscription is a handle on one per-video event stream. Close releases
// the underlying channel; no events are delivered afterwards.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Feed publishes and subscribes to per-video change events
type Feed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, videoID string) (Subscription, error)
}
