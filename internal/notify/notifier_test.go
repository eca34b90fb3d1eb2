package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRenderSummary_Success(t *testing.T) {
	summary, err := RenderSummary(Event{
		ActionType:      "deploy",
		EnvironmentName: "Acceptance",
		Status:          "succeeded",
		Duration:        "4m30s",
		AttemptCount:    1,
	})
	if err != nil {
		t.Fatalf("RenderSummary failed: %v", err)
	}

	want := "Cloud action deploy on environment Acceptance succeeded after 4m30s (attempt 1)"
	if summary != want {
		t.Errorf("Expected %q, got %q", want, summary)
	}
}

func TestRenderSummary_FailureIncludesError(t *testing.T) {
	summary, err := RenderSummary(Event{
		ActionType:      "start",
		EnvironmentName: "Production",
		Status:          "failed",
		AttemptCount:    3,
		ErrorMessage:    "app not found",
	})
	if err != nil {
		t.Fatalf("RenderSummary failed: %v", err)
	}

	if !strings.Contains(summary, "failed") {
		t.Errorf("Summary should mention failure: %q", summary)
	}
	if !strings.Contains(summary, "app not found") {
		t.Errorf("Summary should include error message: %q", summary)
	}
	if strings.Contains(summary, "after") {
		t.Errorf("Summary should omit duration when unset: %q", summary)
	}
}

func TestFillDerived(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2*time.Minute + 3*time.Second)

	event := Event{
		ActionID:        7,
		ActionType:      "restart",
		EnvironmentName: "Test",
		Status:          "succeeded",
		StartedAt:       &started,
		CompletedAt:     &completed,
		AttemptCount:    1,
	}
	FillDerived(&event)

	if event.Duration != "2m3s" {
		t.Errorf("Expected duration 2m3s, got %q", event.Duration)
	}
	if event.Summary == "" {
		t.Error("Expected summary to be filled")
	}
}

func TestFillDerived_KeepsExistingValues(t *testing.T) {
	event := Event{Duration: "1s", Summary: "custom"}
	FillDerived(&event)

	if event.Duration != "1s" || event.Summary != "custom" {
		t.Errorf("Existing derived fields should be kept, got %q / %q", event.Duration, event.Summary)
	}
}

func TestWebhook_Notify(t *testing.T) {
	var received Event
	var contentType string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, 5*time.Second, logrus.WithField("test", t.Name()))
	w.Notify(context.Background(), Event{
		ActionID:        42,
		ActionType:      "stop",
		AppID:           "app-1",
		EnvironmentName: "Production",
		Status:          "succeeded",
		AttemptCount:    1,
	})

	if contentType != "application/json" {
		t.Errorf("Expected application/json, got %q", contentType)
	}
	if received.ActionID != 42 {
		t.Errorf("Expected action_id 42, got %d", received.ActionID)
	}
	if received.Summary == "" {
		t.Error("Expected summary to be rendered before delivery")
	}
}

func TestWebhook_Notify_ServerErrorDoesNotPanic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, 5*time.Second, logrus.WithField("test", t.Name()))
	// Delivery failure is logged, never propagated
	w.Notify(context.Background(), Event{ActionID: 1, Status: "failed"})
}
