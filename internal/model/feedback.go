package model

import (
	"encoding/json"
	"time"
)

// FeedbackRecord holds the AI analysis result for one VideoJob. At most one
// row exists per job; its existence is the strongest completion signal since
// the external system creates it only after analysis finishes.
type FeedbackRecord struct {
	ID           string          `json:"id"`
	VideoID      string          `json:"videoId"`
	OverallScore float64         `json:"overallScore"`
	FeedbackData json.RawMessage `json:"feedbackData"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// FeedbackWebhookRequest is the callback payload the external analysis
// system posts when it finishes (or fails) a job.
type FeedbackWebhookRequest struct {
	VideoID      string          `json:"videoId" validate:"required"`
	Status       VideoStatus     `json:"status" validate:"required,oneof=completed error"`
	OverallScore float64         `json:"overallScore,omitempty"`
	FeedbackData json.RawMessage `json:"feedbackData,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// FeedbackWebhookResponse acknowledges a webhook delivery
type FeedbackWebhookResponse struct {
	VideoID string      `json:"videoId"`
	Status  VideoStatus `json:"status"`
}
