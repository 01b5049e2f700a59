package estimai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the EstimAI API.
const defaultBaseURL = "http://localhost:8000"

// Client defines the EstimAI backend operations consumed by the review core.
type Client interface {
	GetReview(ctx context.Context, projectID string, stage Stage) (*ReviewResponse, error)
	PatchReview(ctx context.Context, projectID string, stage Stage, patches []Patch) (*PatchResponse, error)
	StartPipeline(ctx context.Context, projectID string) (*PipelineResponse, error)
	GetJob(ctx context.Context, jobID string) (*JobStatus, error)
	FetchBid(ctx context.Context, projectID string) ([]byte, error)
}

// APIError is returned when the backend responds with a non-2xx status other
// than 401. Detail carries the server's structured message when the error body
// parsed, otherwise a generic "request failed with status N" text.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("estimai: HTTP %d: %s", e.StatusCode, e.Detail)
}

// errorBody is the backend's structured error shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles outgoing requests to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	baseURL string
	tokens  TokenStore
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an EstimAI client. Every request attaches
// "Authorization: Bearer <token>" when the token store holds one; a 401
// response clears the store and yields an *AuthError.
func NewClient(tokens TokenStore, opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		tokens:  tokens,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) GetReview(ctx context.Context, projectID string, stage Stage) (*ReviewResponse, error) {
	if !stage.Valid() {
		return nil, eris.Errorf("estimai: unknown stage %q", stage)
	}
	var resp ReviewResponse
	path := fmt.Sprintf("/projects/%s/review/%s", projectID, stage)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("estimai: get %s review", stage))
	}
	return &resp, nil
}

func (c *httpClient) PatchReview(ctx context.Context, projectID string, stage Stage, patches []Patch) (*PatchResponse, error) {
	if !stage.Valid() {
		return nil, eris.Errorf("estimai: unknown stage %q", stage)
	}
	var resp PatchResponse
	path := fmt.Sprintf("/projects/%s/review/%s", projectID, stage)
	if err := c.doJSON(ctx, http.MethodPatch, path, PatchRequest{Patches: patches}, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("estimai: patch %s review", stage))
	}
	return &resp, nil
}

func (c *httpClient) StartPipeline(ctx context.Context, projectID string) (*PipelineResponse, error) {
	var resp PipelineResponse
	path := fmt.Sprintf("/projects/%s/pipeline_async", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "estimai: start pipeline")
	}
	return &resp, nil
}

func (c *httpClient) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/jobs/"+jobID, nil, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("estimai: get job %s", jobID))
	}
	return &resp, nil
}

func (c *httpClient) FetchBid(ctx context.Context, projectID string) ([]byte, error) {
	data, err := c.doRaw(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/bid", projectID))
	if err != nil {
		return nil, eris.Wrap(err, "estimai: fetch bid")
	}
	return data, nil
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.do(req, method+" "+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}

func (c *httpClient) doRaw(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	return c.do(req, method+" "+path)
}

func (c *httpClient) do(req *http.Request, op string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}
	}

	token, err := c.tokens.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load token")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Stale credential. Drop it so the next call starts clean.
		_ = c.tokens.Clear()
		return nil, &AuthError{Op: op}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.StatusCode, data),
		}
	}

	return data, nil
}

// errorDetail extracts the server's detail message from an error body,
// falling back to a generic text when the body is not parseable JSON.
func errorDetail(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		return eb.Detail
	}
	return fmt.Sprintf("request failed with status %d", status)
}
