package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/flowreels/api/internal/model"
)

func TestWebhookRequiresSecret(t *testing.T) {
	ta := setupApp(t)
	videoID := submitVideo(t, ta.app)

	payload := fmt.Sprintf(`{"videoId":%q,"status":"completed"}`, videoID)

	resp, err := doRequest(ta.app, http.MethodPost, "/webhooks/feedback", payload, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)

	resp, err = doRequest(ta.app, http.MethodPost, "/webhooks/feedback", payload, map[string]string{
		"X-Webhook-Secret": "wrong-secret",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestWebhookCompletedDelivery(t *testing.T) {
	ta := setupApp(t)
	videoID := submitVideo(t, ta.app)

	payload := fmt.Sprintf(`{"videoId":%q,"status":"completed","overallScore":8.0,"feedbackData":{"cta":"clear"}}`, videoID)
	resp, err := postFeedback(t, ta.app, payload)
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job, err := ta.store.GetVideoJob(context.Background(), videoID)
	if err != nil {
		t.Fatalf("store read failed: %v", err)
	}
	if job.Status != model.VideoStatusCompleted {
		t.Errorf("expected job status completed, got %s", job.Status)
	}

	fb, err := ta.store.GetFeedbackByVideoID(context.Background(), videoID)
	if err != nil {
		t.Fatalf("feedback read failed: %v", err)
	}
	if fb == nil {
		t.Fatal("expected feedback row after delivery")
	}
	if fb.OverallScore != 8.0 {
		t.Errorf("expected overallScore 8.0, got %v", fb.OverallScore)
	}
}

func TestWebhookRedelivery(t *testing.T) {
	ta := setupApp(t)
	videoID := submitVideo(t, ta.app)

	payload := fmt.Sprintf(`{"videoId":%q,"status":"completed","overallScore":6.5}`, videoID)
	for i := 0; i < 2; i++ {
		resp, err := postFeedback(t, ta.app, payload)
		if err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
		assertStatus(t, resp, http.StatusOK)
	}

	fb, err := ta.store.GetFeedbackByVideoID(context.Background(), videoID)
	if err != nil {
		t.Fatalf("feedback read failed: %v", err)
	}
	if fb == nil {
		t.Fatal("expected feedback row after redelivery")
	}
	if fb.OverallScore != 6.5 {
		t.Errorf("expected original score kept, got %v", fb.OverallScore)
	}
}

func TestWebhookErrorDoesNotDemoteCompleted(t *testing.T) {
	ta := setupApp(t)
	videoID := submitVideo(t, ta.app)

	completed := fmt.Sprintf(`{"videoId":%q,"status":"completed","overallScore":7.7}`, videoID)
	resp, err := postFeedback(t, ta.app, completed)
	if err != nil {
		t.Fatalf("completed delivery failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	late := fmt.Sprintf(`{"videoId":%q,"status":"error","error":"late failure report"}`, videoID)
	resp, err = postFeedback(t, ta.app, late)
	if err != nil {
		t.Fatalf("error delivery failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	job, err := ta.store.GetVideoJob(context.Background(), videoID)
	if err != nil {
		t.Fatalf("store read failed: %v", err)
	}
	if job.Status != model.VideoStatusCompleted {
		t.Errorf("expected job to stay completed, got %s", job.Status)
	}
}

func TestWebhookUnknownVideo(t *testing.T) {
	ta := setupApp(t)

	payload := `{"videoId":"no-such-video","status":"completed"}`
	resp, err := postFeedback(t, ta.app, payload)
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestWebhookValidation(t *testing.T) {
	ta := setupApp(t)

	cases := []struct {
		name    string
		payload string
	}{
		{"empty body", `{}`},
		{"missing status", `{"videoId":"some-id"}`},
		{"invalid status", `{"videoId":"some-id","status":"paused"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := postFeedback(t, ta.app, tc.payload)
			if err != nil {
				t.Fatalf("delivery failed: %v", err)
			}
			assertStatus(t, resp, http.StatusBadRequest)
		})
	}
}
