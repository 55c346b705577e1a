// Package analysis is the HTTP client for the remote analysis service that
// classifies POIs, computes risk verdicts and writes narrative summaries.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrDisabled          = errors.New("analysis service not configured")
	ErrMalformedResponse = errors.New("malformed analysis response")
)

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d - body: %s", e.Code, e.Body)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the service at baseURL. An empty baseURL
// yields a client whose calls all fail with ErrDisabled.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) AnalyzeRisk(ctx context.Context, req RiskRequest) (RiskResponse, error) {
	var resp RiskResponse
	if err := c.post(ctx, "/analyze-risk", req, &resp); err != nil {
		return RiskResponse{}, err
	}
	if _, err := resp.Verdict(); err != nil {
		return RiskResponse{}, err
	}
	return resp, nil
}

func (c *Client) GeneralAnalysis(ctx context.Context, req GeneralRequest) (string, error) {
	var resp GeneralResponse
	if err := c.post(ctx, "/general-analysis", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return "", malformed("empty summary")
	}
	return resp.Summary, nil
}

func (c *Client) ControlsAnalysis(ctx context.Context, req ControlsRequest) ([]string, error) {
	var resp ControlsResponse
	if err := c.post(ctx, "/controls-analysis", req, &resp); err != nil {
		return nil, err
	}
	if resp.Controls == nil {
		return nil, malformed("missing controles")
	}
	return resp.Controls, nil
}

func (c *Client) Classify(ctx context.Context, req ClassifyRequest) ([]Classification, error) {
	var resp []Classification
	if err := c.post(ctx, "/classify", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrDisabled
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed("error decoding %s response: %v", path, err)
	}
	return nil
}
