package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/flowreels/api/internal/auth"
	"github.com/flowreels/api/internal/handler"
	"github.com/flowreels/api/internal/middleware"
	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/realtime"
	"github.com/flowreels/api/internal/service"
)

const (
	testJWTSecret      = "test-secret-for-e2e"
	testCallbackSecret = "test-callback-secret"
	testUserID         = "test-user-123"
)

// memStore is an in-memory stand-in for the Postgres store. It implements
// every persistence surface the services need, with the same semantics:
// (nil, nil) for missing rows, at most one feedback row per video.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]*model.VideoJob
	feedback map[string]*model.FeedbackRecord
	strategy map[string]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]*model.VideoJob),
		feedback: make(map[string]*model.FeedbackRecord),
		strategy: make(map[string]json.RawMessage),
	}
}

func (m *memStore) CreateVideoJob(ctx context.Context, job *model.VideoJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	m.jobs[job.ID] = &clone
	return nil
}

func (m *memStore) GetVideoJob(ctx context.Context, id string) (*model.VideoJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	clone := *job
	return &clone, nil
}

func (m *memStore) ListVideoJobsByUser(ctx context.Context, userID string) ([]model.VideoJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []model.VideoJob
	for _, job := range m.jobs {
		if job.UserID == userID {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (m *memStore) UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return time.Time{}, fmt.Errorf("video %s not found", id)
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	return job.UpdatedAt, nil
}

func (m *memStore) GetFeedbackByVideoID(ctx context.Context, videoID string) (*model.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.feedback[videoID]
	if !ok {
		return nil, nil
	}
	clone := *fb
	return &clone, nil
}

func (m *memStore) InsertFeedback(ctx context.Context, fb *model.FeedbackRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feedback[fb.VideoID]; ok {
		return false, nil
	}
	fb.CreatedAt = time.Now()
	clone := *fb
	m.feedback[fb.VideoID] = &clone
	return true, nil
}

func (m *memStore) GetUserStrategy(ctx context.Context, userID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy[userID], nil
}

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *memStore
	feed  *realtime.MemoryFeed
}

// setupApp creates a Fiber app wired like main.go, but with the in-memory
// store, the in-process change feed and no external clients. Unconfigured
// clients make the submitter skip the handoff, so no network is needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	store := newMemStore()
	feed := realtime.NewMemoryFeed()
	validate := validator.New()

	videoService := service.NewVideoService(store, nil, nil, feed, nil, 30*time.Minute)
	feedbackService := service.NewFeedbackService(store, feed)

	videoHandler := handler.NewVideoHandler(videoService, validate)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, validate)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 210 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"postgres": true,
				"redis":    false,
				"analysis": false,
				"storage":  false,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	app.Post("/webhooks/feedback",
		middleware.WebhookAuthMiddleware(testCallbackSecret),
		feedbackHandler.Ingest,
	)

	api := app.Group("/api", authMiddleware.Authenticate())

	videos := api.Group("/videos")
	videos.Post("/", videoHandler.Upload)
	videos.Get("/", videoHandler.List)
	videos.Get("/:videoId/status", videoHandler.Status)
	videos.Get("/:videoId/feedback", videoHandler.Feedback)
	videos.Post("/:videoId/retry", videoHandler.Retry)

	return &testApp{app: app, store: store, feed: feed}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: testUserID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: auth.LegacyIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// uploadForm describes a multipart submission built by doUpload.
type uploadForm struct {
	Title       string
	Description string
	MainMessage string
	Missions    string
	FileName    string
	ContentType string
	OmitFile    bool
}

func defaultUploadForm() uploadForm {
	return uploadForm{
		Title:       "My first reel",
		Description: "short clip",
		MainMessage: "learn something new every day",
		Missions:    `["educar","inspirar"]`,
		FileName:    "reel.mp4",
		ContentType: "video/mp4",
	}
}

// doUpload performs an authenticated multipart upload.
func doUpload(t *testing.T, app *fiber.App, form uploadForm) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       form.Title,
		"description": form.Description,
		"mainMessage": form.MainMessage,
		"missions":    form.Missions,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("failed to write field %s: %v", name, err)
		}
	}

	if !form.OmitFile {
		partHeader := make(textproto.MIMEHeader)
		partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, form.FileName))
		partHeader.Set("Content-Type", form.ContentType)
		part, err := writer.CreatePart(partHeader)
		if err != nil {
			t.Fatalf("failed to create video part: %v", err)
		}
		if _, err := part.Write([]byte("fake video bytes")); err != nil {
			t.Fatalf("failed to write video bytes: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to finalize multipart body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/videos/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))

	return app.Test(req, -1)
}

// submitVideo uploads a reel and returns its id.
func submitVideo(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := doUpload(t, app, defaultUploadForm())
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	videoID, _ := body["videoId"].(string)
	if videoID == "" {
		t.Fatalf("upload response missing videoId: %v", body)
	}
	return videoID
}

// postFeedback delivers an analysis callback with the shared secret.
func postFeedback(t *testing.T, app *fiber.App, payload string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, http.MethodPost, "/webhooks/feedback", payload, map[string]string{
		"X-Webhook-Secret": testCallbackSecret,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
