package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/meetscribe/api/internal/model"
	"github.com/meetscribe/api/pkg/response"
)

func TestCreate_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["id"] == nil || result["id"] == "" {
		t.Error("expected job id in response")
	}
	if result["status"] != string(model.StatusPending) {
		t.Errorf("expected PENDING, got %v", result["status"])
	}
	if result["originalFilename"] != "standup.mp3" {
		t.Errorf("expected original filename, got %v", result["originalFilename"])
	}
}

func TestCreate_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/transcribe", "", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCreate_SecondJobConflicts(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "first.mp3", "audio/mpeg")
	assertStatus(t, resp, http.StatusAccepted)
	parseJSON(t, resp)

	resp, _ = doUpload(t, ta.app, "user-1", "second.mp3", "audio/mpeg")
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != response.CodeConflict {
		t.Errorf("expected %s, got %s", response.CodeConflict, code)
	}
}

func TestCreate_RejectsNonAudio(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "notes.pdf", "application/pdf")
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != response.CodeValidationError {
		t.Errorf("expected %s, got %s", response.CodeValidationError, code)
	}
}

func TestStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doAuthRequest(t, ta.app, http.MethodGet, "/api/transcribe/status/no-such-job", "", "user-1")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestStatus_ForeignJobHidden(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "private.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	resp, _ = doAuthRequest(t, ta.app, http.MethodGet, "/api/transcribe/status/"+jobID, "", "user-2")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestStatus_IncludesTranscript(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	ctx := context.Background()
	ta.service.MarkProcessing(ctx, jobID, "working")
	ta.service.AppendSegment(ctx, jobID, "Speaker 1: hello", 100, "done")
	ta.service.CompleteTranscription(ctx, jobID)

	resp, _ = doAuthRequest(t, ta.app, http.MethodGet, "/api/transcribe/status/"+jobID, "", "user-1")
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != string(model.StatusCompleted) {
		t.Errorf("expected COMPLETED, got %v", result["status"])
	}
	if result["fullTranscript"] != "Speaker 1: hello" {
		t.Errorf("expected transcript in detail view, got %v", result["fullTranscript"])
	}
}

func TestJobs_ListsOwnOnly(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "mine.mp3", "audio/mpeg")
	parseJSON(t, resp)
	resp, _ = doUpload(t, ta.app, "user-2", "theirs.mp3", "audio/mpeg")
	parseJSON(t, resp)

	req, _ := http.NewRequest(http.MethodGet, "/api/transcribe/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, "user-1"))
	listResp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, listResp, http.StatusOK)

	var jobs []map[string]interface{}
	if err := jsonDecode(listResp, &jobs); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0]["originalFilename"] != "mine.mp3" {
		t.Errorf("unexpected job in list: %v", jobs[0])
	}
}

func TestCancel_Pending(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, fmt.Sprintf("/api/transcribe/jobs/%s/cancel", jobID), "", "user-1")
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != string(model.StatusCancelled) {
		t.Errorf("expected CANCELLED, got %v", result["status"])
	}
}

func TestCancel_CompletedRejected(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	ctx := context.Background()
	ta.service.MarkProcessing(ctx, jobID, "working")
	ta.service.AppendSegment(ctx, jobID, "text", 100, "done")
	ta.service.CompleteTranscription(ctx, jobID)

	resp, _ = doAuthRequest(t, ta.app, http.MethodPost, fmt.Sprintf("/api/transcribe/jobs/%s/cancel", jobID), "", "user-1")
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != response.CodeIllegalTransition {
		t.Errorf("expected %s, got %s", response.CodeIllegalTransition, code)
	}
}

func TestDelete(t *testing.T) {
	ta := setupApp(t)

	resp, _ := doUpload(t, ta.app, "user-1", "standup.mp3", "audio/mpeg")
	jobID := parseJSON(t, resp)["id"].(string)

	resp, _ = doAuthRequest(t, ta.app, http.MethodDelete, "/api/transcribe/jobs/"+jobID, "", "user-1")
	assertStatus(t, resp, http.StatusNoContent)

	resp, _ = doAuthRequest(t, ta.app, http.MethodGet, "/api/transcribe/status/"+jobID, "", "user-1")
	assertStatus(t, resp, http.StatusNotFound)
}
