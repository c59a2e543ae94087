package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is an HTTP implementation of Backend.
//
// Endpoints:
//
//	GET  {base}/v1/changes?since={RFC3339}  -> {"records": [...]}
//	POST {base}/v1/changes                  <- {"operations": [...]}
//	GET  {base}/v1/account                  -> {"status": "available"}
//
// Token, when set, returns a bearer token per request so the caller's
// auth layer stays outside this package.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   func(ctx context.Context) (string, error)
}

// NewClient creates an HTTP backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

type pullResponse struct {
	Records []Record `json:"records"`
}

type pushRequest struct {
	Operations []PushOp `json:"operations"`
}

type accountResponse struct {
	Status string `json:"status"`
}

// Pull implements Backend.Pull.
func (c *Client) Pull(ctx context.Context, since time.Time) ([]Record, error) {
	u := c.BaseURL + "/v1/changes"
	if !since.IsZero() {
		u += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := responseError(resp); err != nil {
		return nil, err
	}

	var body pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}

	return body.Records, nil
}

// Push implements Backend.Push.
func (c *Client) Push(ctx context.Context, batch []PushOp) error {
	payload, err := json.Marshal(pushRequest{Operations: batch})
	if err != nil {
		return fmt.Errorf("failed to marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/changes", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return responseError(resp)
}

// AccountStatus implements Backend.AccountStatus.
func (c *Client) AccountStatus(ctx context.Context) (AccountStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/account", nil)
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to build account request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return StatusUnknown, err
	}
	defer resp.Body.Close()

	if err := responseError(resp); err != nil {
		return StatusUnknown, err
	}

	var body accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return StatusUnknown, fmt.Errorf("failed to decode account response: %w", err)
	}

	switch body.Status {
	case "available":
		return StatusAvailable, nil
	case "noAccount":
		return StatusNoAccount, nil
	case "restricted":
		return StatusRestricted, nil
	case "quotaExceeded":
		return StatusQuotaExceeded, nil
	default:
		return StatusUnknown, nil
	}
}

// do attaches the bearer token and executes the request.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Token != nil {
		token, err := c.Token(req.Context())
		if err != nil {
			return nil, &Error{Code: CodeUnauthorized, Detail: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Detail: err.Error()}
	}
	return resp, nil
}

// responseError maps HTTP status codes onto typed remote errors.
func responseError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Code: CodeUnauthorized, Detail: resp.Status}
	case resp.StatusCode == http.StatusInsufficientStorage || resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Code: CodeQuotaExceeded, Detail: resp.Status}
	case resp.StatusCode >= 500:
		return &Error{Code: CodeUnavailable, Detail: resp.Status}
	default:
		return &Error{Code: CodeUnknown, Detail: resp.Status}
	}
}
