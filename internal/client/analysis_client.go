package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/flowreels/api/internal/config"
)

// AnalysisSubmitter defines the interface for handing a reel off to the
// external AI analysis webhook.
type AnalysisSubmitter interface {
	Submit(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error)
	IsConfigured() bool
}

// AnalysisClient implements AnalysisSubmitter against the webhook endpoint
type AnalysisClient struct {
	httpClient *http.Client
	webhookURL string
	apiKey     string
}

// AnalysisRequest carries the asset and metadata for one submission
type AnalysisRequest struct {
	VideoID     string
	UserID      string
	Title       string
	Description string
	Missions    []string
	MainMessage string
	MimeType    string
	FileName    string
	// UserMissionData is the optional pre-fetched strategy context; nil
	// when the user has none.
	UserMissionData json.RawMessage
	Video           io.Reader
}

// AnalysisResponse is the webhook's acknowledgement of a handoff. Any 2xx
// is accepted; the body is parsed best-effort.
type AnalysisResponse struct {
	Accepted bool            `json:"accepted"`
	TaskID   string          `json:"task_id,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// NewAnalysisClient creates a webhook client with the configured hard
// submission timeout (30s by default).
func NewAnalysisClient(cfg *config.AnalysisConfig) *AnalysisClient {
	timeout := time.Duration(cfg.SubmitTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnalysisClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		webhookURL: cfg.WebhookURL,
		apiKey:     cfg.APIKey,
	}
}

// Submit posts the asset plus metadata as a single multipart request. The
// call concerns only the handoff: a 2xx means the external system accepted
// the reel for analysis, not that analysis finished.
func (c *AnalysisClient) Submit(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	missionsJSON, err := json.Marshal(req.Missions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode missions: %w", err)
	}

	fields := map[string]string{
		"videoId":     req.VideoID,
		"userId":      req.UserID,
		"title":       req.Title,
		"description": req.Description,
		"missions":    string(missionsJSON),
		"mainMessage": req.MainMessage,
		"mimeType":    req.MimeType,
	}
	if req.UserMissionData != nil {
		fields["userMissionData"] = string(req.UserMissionData)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, req.FileName))
	partHeader.Set("Content-Type", req.MimeType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create video part: %w", err)
	}
	if _, err := io.Copy(part, req.Video); err != nil {
		return nil, fmt.Errorf("failed to copy video data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Analysis] → POST %s (video=%s)", c.webhookURL, req.VideoID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[Analysis] ✗ POST %s (video=%s) — request failed: %v", c.webhookURL, req.VideoID, err)
		return nil, fmt.Errorf("failed to send analysis request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Analysis] ✗ POST %s (video=%s) — failed to read response: %v", c.webhookURL, req.VideoID, err)
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	log.Printf("[Analysis] ← %d (video=%s)", resp.StatusCode, req.VideoID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analysis webhook error (status %d): %s", resp.StatusCode, string(respBody))
	}

	// Best-effort parse; any 2xx body counts as an accepted handoff.
	result := &AnalysisResponse{Accepted: true, Raw: respBody}
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, result)
		result.Accepted = true
	}
	return result, nil
}

// IsConfigured returns true if the client has a webhook endpoint
func (c *AnalysisClient) IsConfigured() bool {
	return c.webhookURL != ""
}
