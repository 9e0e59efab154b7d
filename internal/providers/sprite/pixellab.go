package sprite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// Options configures the PixelLab client.
type Options struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       infra.Logger
}

// PixelLab generates sprites through the PixelLab HTTP API. Generation
// is asynchronous upstream: a submit call returns a task id, then the
// client polls task status until a terminal state, forwarding the
// upstream progress percentage to the caller on every poll.
type PixelLab struct {
	api          api
	pollInterval time.Duration
	logger       infra.Logger
}

// api is the narrow slice of the PixelLab HTTP surface the generator
// needs. Tests implement it directly; production uses httpAPI.
type api interface {
	submitGeneration(ctx context.Context, req generationRequest) (string, error)
	pollStatus(ctx context.Context, taskID string) (*taskStatus, error)
}

func NewPixelLab(opts Options) *PixelLab {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.pixellab.ai/v1"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PixelLab{
		api: &httpAPI{
			apiKey:     strings.TrimSpace(opts.APIKey),
			baseURL:    baseURL,
			httpClient: httpClient,
		},
		pollInterval: pollInterval,
		logger:       opts.Logger,
	}
}

var _ Generator = (*PixelLab)(nil)

type generationRequest struct {
	Description       string   `json:"description"`
	Action            string   `json:"action,omitempty"`
	Style             string   `json:"style,omitempty"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	NoBackground      *bool    `json:"noBackground,omitempty"`
	PaletteImage      string   `json:"paletteImage,omitempty"`
	TextGuidanceScale *float64 `json:"textGuidanceScale,omitempty"`
}

type taskStatus struct {
	ID       string      `json:"id"`
	Status   string      `json:"status"`
	Progress int         `json:"progress"`
	Stage    string      `json:"stage"`
	Frames   []taskFrame `json:"frames"`
	Error    *taskError  `json:"error"`
}

type taskFrame struct {
	Image  string `json:"image"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type taskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	taskStatusQueued     = "queued"
	taskStatusProcessing = "processing"
	taskStatusSucceeded  = "succeeded"
	taskStatusFailed     = "failed"
)

// Generate submits the prompt and polls until the upstream task reaches
// a terminal state. The context deadline is the only thing bounding the
// wait; callers always run this under their generation timeout.
func (p *PixelLab) Generate(ctx context.Context, prompt domain.StructuredPrompt, onProgress ProgressFunc) (*domain.GenerationResult, error) {
	started := time.Now()
	req := requestFromPrompt(prompt)

	taskID, err := p.api.submitGeneration(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("task_id", taskID).Msg("pixellab: generation submitted")
	if onProgress != nil {
		onProgress(0, "submitted")
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.api.pollStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(status.Progress, stageLabel(status))
		}

		switch status.Status {
		case taskStatusSucceeded:
			result, err := resultFromStatus(status, started)
			if err != nil {
				return nil, err
			}
			return result, nil
		case taskStatusFailed:
			upErr := &UpstreamError{Status: http.StatusUnprocessableEntity, Message: "generation failed"}
			if status.Error != nil {
				upErr.Code = status.Error.Code
				upErr.Message = status.Error.Message
			}
			return nil, upErr
		case taskStatusQueued, taskStatusProcessing:
		default:
			return nil, &UpstreamError{Message: fmt.Sprintf("unknown task status %q", status.Status)}
		}
	}
}

func requestFromPrompt(prompt domain.StructuredPrompt) generationRequest {
	description := strings.TrimSpace(prompt.Description)
	if description == "" {
		description = strings.TrimSpace(prompt.Raw)
	}
	req := generationRequest{
		Description: description,
		Action:      prompt.Action,
		Style:       prompt.Style,
		Width:       prompt.Size.Width,
		Height:      prompt.Size.Height,
	}
	if prompt.Options != nil {
		req.NoBackground = prompt.Options.NoBackground
		req.PaletteImage = prompt.Options.PaletteImage
		req.TextGuidanceScale = prompt.Options.TextGuidanceScale
	}
	return req
}

func resultFromStatus(status *taskStatus, started time.Time) (*domain.GenerationResult, error) {
	if len(status.Frames) == 0 {
		return nil, &UpstreamError{Message: "succeeded task returned no frames"}
	}
	frames := make([]domain.SpriteFrame, len(status.Frames))
	for i, f := range status.Frames {
		frames[i] = domain.SpriteFrame{
			Image:  f.Image,
			URL:    f.URL,
			Width:  f.Width,
			Height: f.Height,
		}
	}
	return &domain.GenerationResult{
		Frames:     frames,
		Provider:   "pixellab",
		Model:      "pixflux",
		DurationMS: time.Since(started).Milliseconds(),
	}, nil
}

func stageLabel(status *taskStatus) string {
	if status.Stage != "" {
		return status.Stage
	}
	return status.Status
}

// httpAPI is the production transport.
type httpAPI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ api = (*httpAPI)(nil)

type submitResponse struct {
	ID string `json:"id"`
}

func (a *httpAPI) submitGeneration(ctx context.Context, req generationRequest) (string, error) {
	raw, err := a.invoke(ctx, http.MethodPost, "/generations", req)
	if err != nil {
		return "", err
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("pixellab: decode submit response: %w", err)
	}
	if decoded.ID == "" {
		return "", &UpstreamError{Message: "submit returned no task id"}
	}
	return decoded.ID, nil
}

func (a *httpAPI) pollStatus(ctx context.Context, taskID string) (*taskStatus, error) {
	raw, err := a.invoke(ctx, http.MethodGet, "/generations/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	var decoded taskStatus
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("pixellab: decode status response: %w", err)
	}
	return &decoded, nil
}

func (a *httpAPI) invoke(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("pixellab: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("pixellab: build request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pixellab: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pixellab: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		upErr := &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var detail struct {
			Error taskError `json:"error"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			upErr.Code = detail.Error.Code
			upErr.Message = detail.Error.Message
		}
		return nil, upErr
	}
	return raw, nil
}
