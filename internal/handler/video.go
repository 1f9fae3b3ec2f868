package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/flowreels/api/internal/middleware"
	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/service"
	"github.com/flowreels/api/pkg/response"
)

const maxUploadSize = 200 * 1024 * 1024 // 200MB

// VideoHandler serves the reel submission and observation endpoints
type VideoHandler struct {
	service   *service.VideoService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.VideoService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /api/videos. The response acknowledges the handoff to
// the analysis system, not the analysis itself.
func (h *VideoHandler) Upload(c *fiber.Ctx) error {
	title := c.FormValue("title")
	if title == "" {
		return response.ValidationError(c, "title is required", nil)
	}

	mainMessage := c.FormValue("mainMessage")
	if mainMessage == "" {
		return response.ValidationError(c, "mainMessage is required", nil)
	}

	missions, err := parseMissions(c.FormValue("missions"))
	if err != nil {
		return response.ValidationError(c, err.Error(), map[string]interface{}{
			"validMissions": model.ValidMissions,
		})
	}

	file, err := c.FormFile("video")
	if err != nil {
		return response.ValidationError(c, "Video file is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 200MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"video/mp4":        true,
		"video/quicktime":  true,
		"video/webm":       true,
		"video/x-matroska": true,
		"video/3gpp":       true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: MP4, MOV, WebM, MKV, 3GP", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	job, err := h.service.Submit(c.Context(), &service.SubmitInput{
		UserID:      middleware.GetUserID(c),
		Title:       title,
		Description: c.FormValue("description"),
		MainMessage: mainMessage,
		Missions:    missions,
		MimeType:    contentType,
		FileName:    file.Filename,
		Size:        file.Size,
		Video:       f,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, service.ErrTransmission):
			return response.TransmissionError(c, "Could not hand the video off for analysis. Please try again.")
		default:
			return response.ServiceError(c, "Failed to submit video")
		}
	}

	return response.Created(c, model.VideoSubmitResponse{
		VideoID:   job.ID,
		Status:    job.Status,
		VideoURL:  job.VideoURL,
		CreatedAt: job.CreatedAt,
	})
}

// parseMissions accepts either a JSON array or a comma-separated list
func parseMissions(raw string) ([]model.Mission, error) {
	if raw == "" {
		return nil, errors.New("at least one mission is required")
	}

	var names []string
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, errors.New("missions must be a JSON array or comma-separated list")
		}
	} else {
		names = strings.Split(raw, ",")
	}

	missions := make([]model.Mission, 0, len(names))
	for _, name := range names {
		m := model.Mission(strings.TrimSpace(name))
		if m == "" {
			continue
		}
		if !model.IsValidMission(m) {
			return nil, errors.New("unknown mission: " + string(m))
		}
		missions = append(missions, m)
	}
	if len(missions) == 0 {
		return nil, errors.New("at least one mission is required")
	}
	return missions, nil
}

// Status handles GET /api/videos/:videoId/status
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	result, err := h.service.Status(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, "Failed to read video status")
	}

	return response.OK(c, result)
}

// Feedback handles GET /api/videos/:videoId/feedback
func (h *VideoHandler) Feedback(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	fb, err := h.service.Feedback(c.Context(), videoID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVideoNotFound):
			return response.NotFound(c, "Video not found")
		case errors.Is(err, service.ErrFeedbackNotReady):
			return response.NotFound(c, "Feedback is not available yet")
		default:
			return response.ServiceError(c, "Failed to read feedback")
		}
	}

	return response.OK(c, fb)
}

// Retry handles POST /api/videos/:videoId/retry
func (h *VideoHandler) Retry(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	result, err := h.service.Retry(c.Context(), videoID)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, "Failed to retry video")
	}

	return response.OK(c, result)
}

// List handles GET /api/videos
func (h *VideoHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, "Failed to list videos")
	}

	return response.OK(c, result)
}
