package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meetscribe/api/internal/config"
	"github.com/meetscribe/api/internal/joberr"
)

// Transcriber defines the interface for remote audio transcription.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path, mimeType string) (string, error)
	IsConfigured() bool
}

// TextGenerator defines the interface for a single generative text call.
type TextGenerator interface {
	GenerateText(ctx context.Context, parts ...string) (string, error)
	IsConfigured() bool
}

// transcribeInstruction is sent with every segment. Verbatim, speaker-labeled
// output keeps transcripts usable for the minutes pass.
const transcribeInstruction = "Professional meeting secretary. Transcribe the audio CLEAN VERBATIM. " +
	"MANDATORY: start every speaker turn with Speaker 1:, Speaker 2:, and so on."

// GeminiClient talks to the Gemini Files and generateContent REST APIs.
// A segment upload is a scoped resource: whatever happens after the upload
// succeeds, the remote file is deleted before TranscribeFile returns.
type GeminiClient struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	model          string
	pollInterval   time.Duration
	activationWait time.Duration
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		pollInterval:   time.Duration(cfg.PollIntervalSecs) * time.Second,
		activationWait: time.Duration(cfg.ActivationTimeout) * time.Second,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// remoteFile is the slice of the Files API metadata the pipeline uses.
type remoteFile struct {
	Name  string `json:"name"` // e.g. files/abc123
	URI   string `json:"uri"`
	State string `json:"state"`
}

type fileEnvelope struct {
	File remoteFile `json:"file"`
}

type contentPart struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateContentRequest struct {
	Contents []struct {
		Parts []contentPart `json:"parts"`
	} `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

// TranscribeFile uploads one audio segment, waits for it to become ACTIVE,
// invokes transcription against it and returns the concatenated text parts.
// The remote file is deleted on every exit path.
func (c *GeminiClient) TranscribeFile(ctx context.Context, path, mimeType string) (string, error) {
	file, err := c.uploadFile(ctx, path, mimeType)
	if err != nil {
		return "", err
	}
	defer c.deleteFile(file.Name)

	if err := c.waitForActive(ctx, file.Name); err != nil {
		return "", err
	}

	req := newGenerateContentRequest(
		contentPart{Text: transcribeInstruction},
		contentPart{FileData: &fileData{MimeType: mimeType, FileURI: file.URI}},
	)

	resp, err := c.generateContent(ctx, req)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

// GenerateText issues a single generateContent call with text-only parts.
func (c *GeminiClient) GenerateText(ctx context.Context, parts ...string) (string, error) {
	contentParts := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		contentParts = append(contentParts, contentPart{Text: p})
	}

	resp, err := c.generateContent(ctx, newGenerateContentRequest(contentParts...))
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

// uploadFile performs the resumable upload handshake: start the session with
// declared size and type, then stream the bytes in a single finalizing call.
func (c *GeminiClient) uploadFile(ctx context.Context, path, mimeType string) (*remoteFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &joberr.UploadError{Op: "stat", Err: err}
	}

	startBody, err := json.Marshal(map[string]interface{}{
		"file": map[string]string{"display_name": info.Name()},
	})
	if err != nil {
		return nil, &joberr.UploadError{Op: "start", Err: err}
	}

	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/upload/v1beta/files", bytes.NewReader(startBody))
	if err != nil {
		return nil, &joberr.UploadError{Op: "start", Err: err}
	}
	startReq.Header.Set("x-goog-api-key", c.apiKey)
	startReq.Header.Set("Content-Type", "application/json")
	startReq.Header.Set("X-Goog-Upload-Protocol", "resumable")
	startReq.Header.Set("X-Goog-Upload-Command", "start")
	startReq.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
	startReq.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	log.Printf("[Gemini API] → POST %s (%s, %d bytes)", startReq.URL.Path, mimeType, info.Size())

	startResp, err := c.httpClient.Do(startReq)
	if err != nil {
		return nil, &joberr.UploadError{Op: "start", Err: err}
	}
	io.Copy(io.Discard, startResp.Body)
	startResp.Body.Close()

	if startResp.StatusCode < 200 || startResp.StatusCode >= 300 {
		return nil, &joberr.UploadError{Op: "start",
			Err: fmt.Errorf("gemini API error (status %d)", startResp.StatusCode)}
	}

	uploadURL := startResp.Header.Get("X-Goog-Upload-Url")
	if uploadURL == "" {
		return nil, &joberr.UploadError{Op: "start", Err: fmt.Errorf("no upload URL in response")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &joberr.UploadError{Op: "read", Err: err}
	}
	defer f.Close()

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return nil, &joberr.UploadError{Op: "upload", Err: err}
	}
	uploadReq.ContentLength = info.Size()
	uploadReq.Header.Set("X-Goog-Upload-Offset", "0")
	uploadReq.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	uploadResp, err := c.httpClient.Do(uploadReq)
	if err != nil {
		return nil, &joberr.UploadError{Op: "upload", Err: err}
	}
	defer uploadResp.Body.Close()

	respBody, err := io.ReadAll(uploadResp.Body)
	if err != nil {
		return nil, &joberr.UploadError{Op: "upload", Err: err}
	}

	if uploadResp.StatusCode < 200 || uploadResp.StatusCode >= 300 {
		return nil, &joberr.UploadError{Op: "upload",
			Err: fmt.Errorf("gemini API error (status %d): %s", uploadResp.StatusCode, string(respBody))}
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, &joberr.UploadError{Op: "upload", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if envelope.File.Name == "" || envelope.File.URI == "" {
		return nil, &joberr.UploadError{Op: "upload", Err: fmt.Errorf("incomplete file metadata in response")}
	}

	log.Printf("[Gemini API] ← uploaded %s", envelope.File.Name)
	return &envelope.File, nil
}

// waitForActive polls the file state until ACTIVE, a FAILED state, the
// configured ceiling, or context cancellation, whichever comes first.
func (c *GeminiClient) waitForActive(ctx context.Context, fileName string) error {
	deadline := time.Now().Add(c.activationWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		var file remoteFile
		if err := c.get(ctx, "/v1beta/"+fileName, &file); err != nil {
			return err
		}

		log.Printf("[Gemini API] Poll file #%d (%s) — state: %s", attempt, fileName, file.State)

		switch file.State {
		case "ACTIVE":
			return nil
		case "FAILED":
			return &joberr.ActivationError{FileName: fileName, State: file.State}
		}

		select {
		case <-ctx.Done():
			log.Printf("[Gemini API] Poll file (%s) — context cancelled", fileName)
			return ctx.Err()
		case <-time.After(c.pollInterval):
			continue
		}
	}

	return &joberr.ActivationTimeoutError{FileName: fileName, Waited: c.activationWait}
}

// deleteFile removes the uploaded file from the remote service. Best effort:
// failures are logged, never propagated, so cleanup cannot mask the real
// outcome of a segment.
func (c *GeminiClient) deleteFile(fileName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1beta/"+fileName, nil)
	if err != nil {
		log.Printf("[Gemini API] ✗ delete %s — %v", fileName, err)
		return
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Gemini API] ✗ delete %s — %v", fileName, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Gemini API] ✗ delete %s — status %d", fileName, resp.StatusCode)
		return
	}
	log.Printf("[Gemini API] deleted %s", fileName)
}

func newGenerateContentRequest(parts ...contentPart) *generateContentRequest {
	req := &generateContentRequest{}
	req.Contents = append(req.Contents, struct {
		Parts []contentPart `json:"parts"`
	}{Parts: parts})
	return req
}

func (c *GeminiClient) generateContent(ctx context.Context, req *generateContentRequest) (*generateContentResponse, error) {
	endpoint := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	var resp generateContentResponse
	if err := c.post(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// extractText concatenates all text parts of all candidates. A response with
// no candidates means the content was safety-filtered.
func extractText(resp *generateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		detail := ""
		if resp.PromptFeedback != nil {
			detail = resp.PromptFeedback.BlockReason
		}
		return "", &joberr.SafetyBlockedError{Detail: detail}
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// post sends a POST request with JSON body
func (c *GeminiClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *GeminiClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *GeminiClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	log.Printf("[Gemini API] → %s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Gemini API] ✗ %s %s — request failed: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Gemini API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Gemini API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Gemini API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.Path, err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
