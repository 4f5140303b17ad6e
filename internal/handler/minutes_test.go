package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/pkg/response"
)

func completeTranscription(t *testing.T, ta *testApp, jobID string) {
	t.Helper()
	ctx := context.Background()
	if err := ta.service.MarkProcessing(ctx, jobID, "working"); err != nil {
		t.Fatal(err)
	}
	if err := ta.service.AppendSegment(ctx, jobID, "Speaker 1: agenda item one", 100, "done"); err != nil {
		t.Fatal(err)
	}
	if err := ta.service.CompleteTranscription(ctx, jobID); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateMinutes_Accepted(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)
	completeTranscription(t, ta, jobID)

	body := `{"tone":"FORMAL","meetingDate":"2026-08-31","title":"Standup"}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-minutes/"+jobID, body, "user-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["status"] != string(model.StatusProcessing) {
		t.Errorf("expected PROCESSING, got %v", result["status"])
	}
	if result["phase"] != string(model.PhaseMinutes) {
		t.Errorf("expected minutes phase, got %v", result["phase"])
	}
}

func TestGenerateMinutes_PendingJobNotReady(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-minutes/"+jobID, `{"tone":"FORMAL"}`, "user-1")
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != response.CodeNotReady {
		t.Errorf("expected %s, got %s", response.CodeNotReady, code)
	}
}

func TestGenerateMinutes_InvalidTone(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)
	completeTranscription(t, ta, jobID)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-minutes/"+jobID, `{"tone":"SARCASTIC"}`, "user-1")
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != response.CodeValidationError {
		t.Errorf("expected %s, got %s", response.CodeValidationError, code)
	}
}

func TestGenerateMinutes_MissingTone(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)
	completeTranscription(t, ta, jobID)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-minutes/"+jobID, `{}`, "user-1")
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGenerateMinutes_ForeignJobHidden(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)
	completeTranscription(t, ta, jobID)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-minutes/"+jobID, `{"tone":"FORMAL"}`, "user-2")
	assertStatus(t, resp, http.StatusNotFound)
}
