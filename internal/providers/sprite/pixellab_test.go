package sprite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

type scriptedAPI struct {
	mu        sync.Mutex
	submitID  string
	submitErr error
	statuses  []taskStatus
	pollErr   error
	polls     int
	gotReq    generationRequest
}

func (s *scriptedAPI) submitGeneration(_ context.Context, req generationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotReq = req
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return s.submitID, nil
}

func (s *scriptedAPI) pollStatus(_ context.Context, _ string) (*taskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	idx := s.polls
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.polls++
	status := s.statuses[idx]
	return &status, nil
}

func testPrompt() domain.StructuredPrompt {
	return domain.StructuredPrompt{
		Type:        "unit",
		Style:       "pixel art",
		Size:        domain.SpriteSize{Width: 64, Height: 64},
		Action:      "idle",
		Description: "armored knight",
	}
}

func newTestPixelLab(stub api) *PixelLab {
	return &PixelLab{api: stub, pollInterval: time.Millisecond, logger: zerolog.Nop()}
}

func TestGenerateForwardsProgress(t *testing.T) {
	stub := &scriptedAPI{
		submitID: "task-1",
		statuses: []taskStatus{
			{ID: "task-1", Status: taskStatusProcessing, Progress: 30, Stage: "rendering"},
			{ID: "task-1", Status: taskStatusProcessing, Progress: 70, Stage: "rendering"},
			{ID: "task-1", Status: taskStatusSucceeded, Progress: 100, Frames: []taskFrame{{Image: "aGVsbG8=", Width: 64, Height: 64}}},
		},
	}
	gen := newTestPixelLab(stub)

	var updates []string
	result, err := gen.Generate(context.Background(), testPrompt(), func(percent int, stage string) {
		updates = append(updates, stage)
		if percent < 0 || percent > 100 {
			t.Errorf("percent out of range: %d", percent)
		}
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if result.Provider != "pixellab" || result.Model != "pixflux" {
		t.Fatalf("provider/model = %s/%s", result.Provider, result.Model)
	}
	if len(result.Frames) != 1 || result.Frames[0].Image != "aGVsbG8=" {
		t.Fatalf("unexpected frames: %+v", result.Frames)
	}
	if len(updates) < 3 {
		t.Fatalf("expected submitted plus poll updates, got %v", updates)
	}
	if updates[0] != "submitted" {
		t.Fatalf("first update = %q, want submitted", updates[0])
	}
	if updates[1] != "rendering" {
		t.Fatalf("second update = %q, want rendering", updates[1])
	}
	if stub.gotReq.Description != "armored knight" {
		t.Fatalf("description = %q", stub.gotReq.Description)
	}
	if stub.gotReq.Width != 64 || stub.gotReq.Height != 64 {
		t.Fatalf("dimensions = %dx%d", stub.gotReq.Width, stub.gotReq.Height)
	}
}

func TestGenerateFailedTask(t *testing.T) {
	stub := &scriptedAPI{
		submitID: "task-2",
		statuses: []taskStatus{
			{ID: "task-2", Status: taskStatusFailed, Error: &taskError{Code: "content_policy", Message: "prompt rejected"}},
		},
	}
	gen := newTestPixelLab(stub)

	_, err := gen.Generate(context.Background(), testPrompt(), nil)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Code != "content_policy" {
		t.Fatalf("code = %q", upErr.Code)
	}
	if upErr.Message != "prompt rejected" {
		t.Fatalf("message = %q", upErr.Message)
	}
}

func TestGenerateContextDeadline(t *testing.T) {
	stub := &scriptedAPI{
		submitID: "task-3",
		statuses: []taskStatus{{ID: "task-3", Status: taskStatusProcessing, Progress: 10}},
	}
	gen := newTestPixelLab(stub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gen.Generate(ctx, testPrompt(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGenerateSucceededWithoutFrames(t *testing.T) {
	stub := &scriptedAPI{
		submitID: "task-4",
		statuses: []taskStatus{{ID: "task-4", Status: taskStatusSucceeded, Progress: 100}},
	}
	gen := newTestPixelLab(stub)

	_, err := gen.Generate(context.Background(), testPrompt(), nil)
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestGenerateUsesRawWhenDescriptionEmpty(t *testing.T) {
	stub := &scriptedAPI{
		submitID: "task-5",
		statuses: []taskStatus{
			{ID: "task-5", Status: taskStatusSucceeded, Progress: 100, Frames: []taskFrame{{Image: "eA=="}}},
		},
	}
	gen := newTestPixelLab(stub)

	prompt := testPrompt()
	prompt.Description = ""
	prompt.Raw = "a small slime"
	if _, err := gen.Generate(context.Background(), prompt, nil); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if stub.gotReq.Description != "a small slime" {
		t.Fatalf("description = %q, want raw text", stub.gotReq.Description)
	}
}

func TestHTTPAPISubmitAndPoll(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/generations":
			var payload generationRequest
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if payload.Description != "armored knight" {
				t.Fatalf("description = %q", payload.Description)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "task-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/generations/task-9":
			_ = json.NewEncoder(w).Encode(taskStatus{
				ID:       "task-9",
				Status:   taskStatusSucceeded,
				Progress: 100,
				Frames:   []taskFrame{{Image: "aW1n", Width: 64, Height: 64}},
			})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	gen := NewPixelLab(Options{
		APIKey:       "test-key",
		BaseURL:      ts.URL,
		PollInterval: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	result, err := gen.Generate(context.Background(), testPrompt(), nil)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(result.Frames) != 1 || result.Frames[0].Image != "aW1n" {
		t.Fatalf("unexpected frames: %+v", result.Frames)
	}
}

func TestHTTPAPIDecodesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}`))
	}))
	defer ts.Close()

	transport := &httpAPI{apiKey: "k", baseURL: ts.URL, httpClient: ts.Client()}
	_, err := transport.submitGeneration(context.Background(), generationRequest{Description: "x"})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", upErr.Status)
	}
	if upErr.Code != "rate_limited" {
		t.Fatalf("code = %q", upErr.Code)
	}
	if upErr.Message != "too many requests" {
		t.Fatalf("message = %q", upErr.Message)
	}
}

func TestHTTPAPISubmitWithoutTaskID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	transport := &httpAPI{apiKey: "k", baseURL: ts.URL, httpClient: ts.Client()}
	_, err := transport.submitGeneration(context.Background(), generationRequest{Description: "x"})
	if err == nil {
		t.Fatalf("expected error for missing task id")
	}
}
