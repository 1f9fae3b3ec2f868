package model

import "time"

// VideoJob represents one user-submitted reel and its analysis lifecycle.
// The row is created by the submitter, mutated by the external analysis
// system (via the feedback webhook) and by the retry controller.
type VideoJob struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	MainMessage string      `json:"mainMessage"`
	Missions    []Mission   `json:"missions"`
	MimeType    string      `json:"mimeType,omitempty"`
	VideoURL    string      `json:"videoUrl,omitempty"`
	Status      VideoStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// VideoSubmitResponse is returned after a successful handoff to the
// analysis webhook. Analysis completion arrives later, out of band.
type VideoSubmitResponse struct {
	VideoID   string      `json:"videoId"`
	Status    VideoStatus `json:"status"`
	VideoURL  string      `json:"videoUrl,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// VideoStatusResponse is the one-shot status read for a job. Completed is
// reported whenever a feedback row exists, even if the status column has
// not caught up yet.
type VideoStatusResponse struct {
	VideoID           string      `json:"videoId"`
	Status            VideoStatus `json:"status"`
	FeedbackAvailable bool        `json:"feedbackAvailable"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// VideoRetryResponse reports the outcome of a retry request
type VideoRetryResponse struct {
	VideoID string      `json:"videoId"`
	Status  VideoStatus `json:"status"`
	Applied bool        `json:"applied"`
}

// VideoListResponse wraps the history listing
type VideoListResponse struct {
	Videos []VideoJob `json:"videos"`
	Total  int        `json:"total"`
}
