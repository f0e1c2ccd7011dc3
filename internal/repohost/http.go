package repohost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// HTTPClientConfig configures the HTTP collaborator client.
type HTTPClientConfig struct {
	// BaseURL is the collaborator's base URL.
	BaseURL string
	// Token is an optional bearer token.
	Token string
	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// Validate validates the configuration.
func (c *HTTPClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	return nil
}

// HTTPClient implements Client against a JSON-over-HTTP collaborator.
type HTTPClient struct {
	config     HTTPClientConfig
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP collaborator client.
func NewHTTPClient(config HTTPClientConfig) (*HTTPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid repohost config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// FetchRepoSnapshot returns the build/PR view of a target.
func (c *HTTPClient) FetchRepoSnapshot(ctx context.Context, target string) (*models.RepoSnapshot, error) {
	var snap models.RepoSnapshot
	if err := c.getJSON(ctx, target, "snapshot", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// FetchDependencyUpdates returns the available dependency updates.
func (c *HTTPClient) FetchDependencyUpdates(ctx context.Context, target string) ([]models.DependencyUpdate, error) {
	var updates []models.DependencyUpdate
	if err := c.getJSON(ctx, target, "updates", &updates); err != nil {
		return nil, err
	}

	// Classify deltas the collaborator left unclassified.
	for i := range updates {
		if updates[i].UpdateType == "" {
			updates[i].UpdateType = models.ClassifyUpdate(updates[i].CurrentVersion, updates[i].LatestVersion)
		}
	}
	return updates, nil
}

// FetchReleaseReadiness reports whether a target warrants a release.
func (c *HTTPClient) FetchReleaseReadiness(ctx context.Context, target string) (*models.ReleaseReadiness, error) {
	var rr models.ReleaseReadiness
	if err := c.getJSON(ctx, target, "release-readiness", &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// OpenUpdatePR opens a dependency-update PR and returns its identifier.
func (c *HTTPClient) OpenUpdatePR(ctx context.Context, target string, updates []models.DependencyUpdate) (string, error) {
	body, err := json.Marshal(map[string]interface{}{"updates": updates})
	if err != nil {
		return "", fmt.Errorf("marshal update PR request: %w", err)
	}

	reqURL := c.endpoint(target, "update-pr")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open update PR for %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("open update PR for %s: status %d, body: %s", target, resp.StatusCode, string(data))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode update PR response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("open update PR for %s: empty PR identifier", target)
	}
	return result.ID, nil
}

// getJSON performs a GET against one of a target's endpoints and decodes
// the JSON response. Failures come back as *FetchError.
func (c *HTTPClient) getJSON(ctx context.Context, target, op string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(target, op), nil)
	if err != nil {
		return &FetchError{Target: target, Op: op, Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Target: target, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &FetchError{
			Target: target,
			Op:     op,
			Err:    fmt.Errorf("status %d, body: %s", resp.StatusCode, string(data)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Target: target, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *HTTPClient) endpoint(target, op string) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.config.BaseURL, url.PathEscape(target), op)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}
