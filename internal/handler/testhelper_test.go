package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"

	"github.com/meetscribe/api/internal/auth"
	"github.com/meetscribe/api/internal/middleware"
	"github.com/meetscribe/api/internal/service"
	"github.com/meetscribe/api/internal/store"
)

const testJWTSecret = "test-secret-for-handlers"

type fakeEnqueuer struct{ count int }

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.count++
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", f.count)}, nil
}

// testApp holds the app plus the backing store so tests can seed state.
type testApp struct {
	app     *fiber.App
	store   *store.MemoryJobStore
	service *service.JobService
}

// setupApp wires the API routes the way main.go does, backed by the
// in-memory store and a fake queue so no Redis is needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobStore := store.NewMemoryJobStore()
	jobService := service.NewJobService(jobStore, &fakeEnqueuer{}, nil, nil, t.TempDir())
	validate := validator.New()

	transcribeHandler := NewTranscribeHandler(jobService, validate, 200)
	minutesHandler := NewMinutesHandler(jobService, validate)
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 200 * 1024 * 1024,
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	transcribe := api.Group("/transcribe")
	transcribe.Post("/", transcribeHandler.Create)
	transcribe.Get("/status/:jobId", transcribeHandler.Status)
	transcribe.Get("/jobs", transcribeHandler.Jobs)
	transcribe.Post("/jobs/:jobId/cancel", transcribeHandler.Cancel)
	transcribe.Delete("/jobs/:jobId", transcribeHandler.Delete)

	api.Post("/generate-minutes/:jobId", minutesHandler.Generate)

	return &testApp{app: app, store: jobStore, service: jobService}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "meetscribe-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest performs a request against the test app.
func doRequest(app *fiber.App, method, path, body, contentType string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated JSON request as userID.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body, userID string) (*http.Response, error) {
	t.Helper()
	contentType := ""
	if body != "" {
		contentType = "application/json"
	}
	return doRequest(app, method, path, body, contentType, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
}

// doUpload performs an authenticated multipart upload of a fake audio file.
func doUpload(t *testing.T, app *fiber.App, userID, filename, fileContentType string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", fileContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake audio bytes"))
	w.Close()

	req, err := http.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t, userID))

	return app.Test(req, -1)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, string(b))
	}
	return result
}

// jsonDecode decodes a response body into v.
func jsonDecode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode digs the error code out of the API error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("no error envelope in response: %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}
