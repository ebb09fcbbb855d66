package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nanobanano/miniapp/internal/config"
)

// State is the provider-reported lifecycle state of a job.
type State string

const (
	StateWaiting State = "waiting"
	StateSuccess State = "success"
	StateFail    State = "fail"
)

// Status is one decoded poll result. ResultURL is set only for StateSuccess,
// and may still be empty when the provider reports success without URLs.
type Status struct {
	State     State
	ResultURL string
}

// ProviderError is a rejection carried in the provider's response envelope.
type ProviderError struct {
	Code int
	Msg  string
}

func (e *ProviderError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("kie.ai rejected request (code %d)", e.Code)
	}
	return e.Msg
}

// Client talks to the kie.ai asynchronous jobs API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  cfg.KIEAPIKey,
		baseURL: strings.TrimRight(cfg.KIEBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// CreateTask submits a nano-banana generation job and returns the provider's
// task id. An envelope code other than 200 is a provider rejection and is
// returned as *ProviderError.
func (c *Client) CreateTask(ctx context.Context, prompt, imageSize string) (string, error) {
	payload := map[string]any{
		"model": "google/nano-banana",
		"input": map[string]any{
			"prompt":        prompt,
			"output_format": "jpeg",
			"image_size":    imageSize,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	fullURL, err := c.endpoint("/api/v1/jobs/createTask", nil)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post createTask: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return "", fmt.Errorf("decode createTask response: %w (status=%d body=%s)", err, resp.StatusCode, truncateBody(rawBody))
	}

	if env.Code != 200 {
		c.log.Error("kie create task rejected", "code", env.Code, "msg", env.Msg)
		return "", &ProviderError{Code: env.Code, Msg: env.Msg}
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode createTask data: %w (body=%s)", err, truncateBody(rawBody))
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("empty taskId in createTask response")
	}

	c.log.Info("kie task created", "task_id", data.TaskID)
	return data.TaskID, nil
}

// TaskStatus fetches the current state of a job. Transport and decode errors
// are returned as plain errors so the caller can treat the attempt as
// transient; an envelope code other than 200 is the provider saying the job
// is gone and maps to StateFail.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (Status, error) {
	params := url.Values{}
	params.Set("taskId", taskID)

	fullURL, err := c.endpoint("/api/v1/jobs/recordInfo", params)
	if err != nil {
		return Status{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Status{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("get recordInfo: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Status{}, fmt.Errorf("read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return Status{}, fmt.Errorf("decode recordInfo response: %w (status=%d body=%s)", err, resp.StatusCode, truncateBody(rawBody))
	}

	if env.Code != 200 {
		c.log.Warn("kie record info not ok", "task_id", taskID, "code", env.Code, "msg", env.Msg)
		return Status{State: StateFail}, nil
	}

	var data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Status{}, fmt.Errorf("decode recordInfo data: %w (body=%s)", err, truncateBody(rawBody))
	}

	switch data.State {
	case "success":
		return Status{State: StateSuccess, ResultURL: firstResultURL(data.ResultJSON)}, nil
	case "fail":
		c.log.Warn("kie task failed", "task_id", taskID, "fail_code", data.FailCode, "fail_msg", data.FailMsg)
		return Status{State: StateFail}, nil
	default:
		// waiting, queuing, generating and anything the provider invents next.
		return Status{State: StateWaiting}, nil
	}
}

// firstResultURL extracts the first resultUrls entry. A missing or malformed
// resultJson still counts as success with no reference.
func firstResultURL(resultJSON string) string {
	if resultJSON == "" {
		return ""
	}
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return ""
	}
	if len(result.ResultURLs) == 0 {
		return ""
	}
	return result.ResultURLs[0]
}

func (c *Client) endpoint(path string, params url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if params != nil {
		ref.RawQuery = params.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
