// Package observer tracks a single video job until a terminal signal
// arrives, racing two redundant channels: a one-shot poll of the persisted
// row (and feedback-row existence) on start, and a per-video realtime
// change subscription. Whichever fires first wins; the transition function
// is idempotent so the loser becomes a no-op.
package observer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
)

// JobReader is the read-side the observer needs from the store
type JobReader interface {
	GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error)
	GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error)
}

// EventType classifies observer notifications
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventDegraded  EventType = "degraded"
	EventRedirect  EventType = "redirect"
)

// Event is one observer notification delivered to the owning view
type Event struct {
	Type     EventType
	VideoID  string
	Status   model.VideoStatus
	Progress int
	Message  string
}

// Options tune an observer; zero values select defaults
type Options struct {
	Clock            Clock
	RedirectDelay    time.Duration
	ProgressInterval time.Duration
}

const (
	defaultRedirectDelay    = 2 * time.Second
	defaultProgressInterval = 2 * time.Second
)

// Observer watches one video job. Create with New, call Start once, and
// Stop on teardown; events arrive on Events until Stop.
type Observer struct {
	videoID          string
	reader           JobReader
	feed             realtime.Feed
	estimator        *ProgressEstimator
	redirectDelay    time.Duration
	progressInterval time.Duration

	mu     sync.Mutex
	status model.VideoStatus

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	sub      realtime.Subscription
}

// New creates an observer for the given video job
func New(videoID string, reader JobReader, feed realtime.Feed, opts Options) *Observer {
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = defaultRedirectDelay
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	return &Observer{
		videoID:          videoID,
		reader:           reader,
		feed:             feed,
		estimator:        NewProgressEstimator(opts.Clock),
		redirectDelay:    opts.RedirectDelay,
		progressInterval: opts.ProgressInterval,
		status:           model.VideoStatusUploading,
		events:           make(chan Event, 16),
		done:             make(chan struct{}),
	}
}

// Events returns the notification stream. The channel is never closed;
// consumers must select on Done as well or they block forever once the
// observer stops.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Done is closed when the observer stops
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Status returns the current observation state
func (o *Observer) Status() model.VideoStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Progress returns the synthetic progress estimate: 100 only once
// completion is confirmed, a bounded elapsed-time estimate otherwise.
func (o *Observer) Progress() int {
	o.mu.Lock()
	status := o.status
	o.mu.Unlock()

	if status == model.VideoStatusCompleted {
		return 100
	}
	return o.estimator.Value()
}

// Start subscribes to the change feed, then performs the one-shot poll.
// Subscription comes first so a completion landing between the two steps
// is not missed. Failures of either channel degrade observation but never
// fail the job.
func (o *Observer) Start(ctx context.Context) {
	sub, err := o.feed.Subscribe(ctx, o.videoID)
	if err != nil {
		log.Printf("observer: subscribe failed for video %s: %v", o.videoID, err)
		o.emitDegraded("subscription unavailable")
	} else {
		o.sub = sub
	}

	o.pollOnce(ctx)

	go o.run(ctx)
}

// pollOnce is channel A: read feedback existence first (the strongest
// completion signal), then the status column.
func (o *Observer) pollOnce(ctx context.Context) {
	fb, err := o.reader.GetFeedbackByVideoID(ctx, o.videoID)
	if err != nil {
		log.Printf("observer: feedback poll failed for video %s: %v", o.videoID, err)
		o.emitDegraded("could not verify status")
		return
	}
	if fb != nil {
		o.complete()
		return
	}

	job, err := o.reader.GetVideoJob(ctx, o.videoID)
	if err != nil {
		log.Printf("observer: job poll failed for video %s: %v", o.videoID, err)
		o.emitDegraded("could not verify status")
		return
	}
	if job == nil {
		o.emitDegraded("video not found")
		return
	}

	switch job.Status {
	case model.VideoStatusCompleted:
		o.complete()
	case model.VideoStatusError:
		o.fail("analysis failed")
	default:
		o.beginProcessing()
	}
}

func (o *Observer) run(ctx context.Context) {
	ticker := time.NewTicker(o.progressInterval)
	defer ticker.Stop()

	var subEvents <-chan realtime.ChangeEvent
	if o.sub != nil {
		subEvents = o.sub.Events()
	}

	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return
		case <-o.done:
			return
		case ev, ok := <-subEvents:
			if !ok {
				subEvents = nil
				continue
			}
			o.apply(ev)
		case <-ticker.C:
			o.emitProgress()
		}
	}
}

// apply is channel B's entry into the shared transition function
func (o *Observer) apply(ev realtime.ChangeEvent) {
	switch {
	case ev.Table == realtime.TableVideoFeedback && ev.Type == realtime.EventInsert:
		o.complete()
	case ev.Table == realtime.TableVideoJobs && ev.Type == realtime.EventUpdate:
		switch ev.Status {
		case model.VideoStatusCompleted:
			o.complete()
		case model.VideoStatusError:
			o.fail("analysis failed")
		case model.VideoStatusProcessing:
			o.beginProcessing()
		}
	}
}

// complete performs the completed transition exactly once. Completed is the
// only hard-terminal state: later signals of any kind are ignored.
func (o *Observer) complete() {
	o.mu.Lock()
	if o.status == model.VideoStatusCompleted {
		o.mu.Unlock()
		return
	}
	o.status = model.VideoStatusCompleted
	o.mu.Unlock()

	o.emit(Event{
		Type:     EventCompleted,
		VideoID:  o.videoID,
		Status:   model.VideoStatusCompleted,
		Progress: 100,
	})

	// Single delayed navigation; the done guard inside emit suppresses it
	// if the view tears down first.
	time.AfterFunc(o.redirectDelay, func() {
		o.emit(Event{
			Type:    EventRedirect,
			VideoID: o.videoID,
			Status:  model.VideoStatusCompleted,
		})
	})
}

func (o *Observer) fail(message string) {
	o.mu.Lock()
	if o.status == model.VideoStatusCompleted || o.status == model.VideoStatusError {
		o.mu.Unlock()
		return
	}
	o.status = model.VideoStatusError
	o.mu.Unlock()

	o.emit(Event{
		Type:    EventError,
		VideoID: o.videoID,
		Status:  model.VideoStatusError,
		Message: message,
	})
}

// beginProcessing enters the processing state from either non-terminal
// origin: uploading (initial confirmation, possibly after a failed poll)
// starts the progress curve, error (manual retry) restarts it.
func (o *Observer) beginProcessing() {
	o.mu.Lock()
	switch o.status {
	case model.VideoStatusUploading:
		o.status = model.VideoStatusProcessing
		o.mu.Unlock()
		o.estimator.Start()
	case model.VideoStatusError:
		o.status = model.VideoStatusProcessing
		o.mu.Unlock()
		o.estimator.Reset()
	default:
		o.mu.Unlock()
		return
	}

	o.emitProgress()
}

func (o *Observer) emitProgress() {
	o.mu.Lock()
	status := o.status
	o.mu.Unlock()
	if status != model.VideoStatusProcessing {
		return
	}

	ev := Event{
		Type:     EventProgress,
		VideoID:  o.videoID,
		Status:   model.VideoStatusProcessing,
		Progress: o.estimator.Value(),
	}

	// Progress is droppable; never block a slow consumer.
	select {
	case <-o.done:
	case o.events <- ev:
	default:
	}
}

func (o *Observer) emitDegraded(reason string) {
	o.emit(Event{
		Type:    EventDegraded,
		VideoID: o.videoID,
		Message: reason,
	})
}

func (o *Observer) emit(ev Event) {
	select {
	case <-o.done:
	case o.events <- ev:
	}
}

// Stop tears the observer down: the subscription is released and no
// further events are delivered. Safe to call more than once.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		close(o.done)
		if o.sub != nil {
			if err := o.sub.Close(); err != nil {
				log.Printf("observer: failed to close subscription for video %s: %v", o.videoID, err)
			}
		}
	})
}
