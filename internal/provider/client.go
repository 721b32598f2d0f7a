// Package provider is the HTTP client for the external video generation API
// (Kie.ai-style). The service never blocks a request on it: generation is
// submitted from the background worker and reported back by callback or poll.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Task states reported by the provider.
const (
	StateWaiting = "waiting"
	StateSuccess = "success"
	StateFail    = "fail"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// GenerateRequest is a video generation submission.
type GenerateRequest struct {
	Prompt             string
	Model              string
	DurationSeconds    int
	AspectRatio        string
	ReferenceImageURLs []string
}

// TaskStatus is the provider's view of a generation task.
type TaskStatus struct {
	TaskID   string
	State    string
	VideoURL string
	FailCode string
	FailMsg  string
}

type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, callbackURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

type generatePayload struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Duration    int      `json:"duration"`
	AspectRatio string   `json:"aspectRatio"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
	CallbackURL string   `json:"callBackUrl,omitempty"`
}

type generateResponse struct {
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// GenerateVideo submits a generation request and returns the provider task id
// used for callback matching and polling.
func (c *Client) GenerateVideo(ctx context.Context, req GenerateRequest) (string, error) {
	payload := generatePayload{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Duration:    req.DurationSeconds,
		AspectRatio: req.AspectRatio,
		ImageURLs:   req.ReferenceImageURLs,
		CallbackURL: c.callbackURL,
	}
	var resp generateResponse
	if err := c.post(ctx, "/video/generate", payload, &resp); err != nil {
		return "", err
	}
	if resp.Data.TaskID == "" {
		return "", fmt.Errorf("provider accepted request but returned no task id")
	}
	return resp.Data.TaskID, nil
}

type taskResponse struct {
	Data struct {
		TaskID     string `json:"taskId"`
		State      string `json:"state"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
		ResultJSON string `json:"resultJson"`
	} `json:"data"`
}

// GetTask fetches the current state of a generation task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider task lookup: %w", err)
	}
	defer httpResp.Body.Close()
	if err := checkStatus(httpResp); err != nil {
		return nil, err
	}

	var resp taskResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("provider task lookup: invalid JSON: %w", err)
	}

	status := &TaskStatus{
		TaskID:   resp.Data.TaskID,
		State:    resp.Data.State,
		FailCode: resp.Data.FailCode,
		FailMsg:  resp.Data.FailMsg,
	}
	if resp.Data.State == StateSuccess && resp.Data.ResultJSON != "" {
		url, err := ParseResultURL(resp.Data.ResultJSON)
		if err != nil {
			return nil, err
		}
		status.VideoURL = url
	}
	return status, nil
}

// ParseResultURL extracts the first playable URL from the provider's
// resultJson field, a JSON string of the form {"resultUrls": ["..."]}.
func ParseResultURL(resultJSON string) (string, error) {
	var result struct {
		ResultURLs []string `json:"resultUrls"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", fmt.Errorf("invalid provider result payload: %w", err)
	}
	if len(result.ResultURLs) == 0 || result.ResultURLs[0] == "" {
		return "", fmt.Errorf("provider result carries no video URL")
	}
	return result.ResultURLs[0], nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer httpResp.Body.Close()
	if err := checkStatus(httpResp); err != nil {
		return err
	}
	return json.NewDecoder(httpResp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
