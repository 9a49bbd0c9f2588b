// Package publish uploads site artifacts to the pages hosting API and drives
// deployments to a terminal state. The hosting backend is a black box behind
// its HTTP API.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/artifact"
)

const userAgent = "docship/1.0"

// Client talks to a pages hosting API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	cfg        *appcfg.PublishConfig
}

// NewClient creates a pages API client from configuration.
func NewClient(cfg *appcfg.PublishConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		apiURL:     cfg.APIURL,
		token:      cfg.Token,
		cfg:        cfg,
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests, custom transports).
func (c *Client) WithHTTPClient(hc *http.Client) *Client { c.httpClient = hc; return c }

// Artifact is the hosting API's record of an uploaded artifact.
type Artifact struct {
	ID     string `json:"id"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Deployment is the hosting API's record of a deployment.
type Deployment struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // pending|in_progress|active|failed
	URL         string `json:"url,omitempty"`
	Environment string `json:"environment,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Deployment terminal states.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusActive     = "active"
	StatusFailed     = "failed"
)

// UploadArtifact streams the packed artifact to the hosting API.
func (c *Client) UploadArtifact(ctx context.Context, info artifact.Info) (*Artifact, error) {
	f, err := os.Open(filepath.Clean(info.Path))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	req, err := c.newRequest(ctx, http.MethodPost, "/artifacts", f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("X-Artifact-Digest", "sha256:"+info.Digest)
	req.ContentLength = info.Size

	var out Artifact
	if err := c.doRequest(req, "upload artifact", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeploymentRequest carries deployment creation parameters.
type DeploymentRequest struct {
	ArtifactID  string `json:"artifact_id"`
	Environment string `json:"environment"`
	Commit      string `json:"commit,omitempty"`
}

// CreateDeployment asks the hosting API to deploy an uploaded artifact.
func (c *Client) CreateDeployment(ctx context.Context, dr DeploymentRequest) (*Deployment, error) {
	body, err := json.Marshal(dr)
	if err != nil {
		return nil, fmt.Errorf("marshal deployment request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/deployments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Deployment
	if err := c.doRequest(req, "create deployment", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDeployment fetches the current deployment state.
func (c *Client) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/deployments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out Deployment
	if err := c.doRequest(req, "get deployment", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitActive polls the deployment until it becomes active, fails, or the
// configured poll timeout elapses. The previous deployment stays live until
// the new one reaches active, so timing out leaves the site serving.
func (c *Client) WaitActive(ctx context.Context, id string) (*Deployment, error) {
	interval := appcfg.Duration(c.cfg.PollInterval)
	timeout := appcfg.Duration(c.cfg.PollTimeout)
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		dep, err := c.GetDeployment(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("deployment %s did not complete: %w", id, ctx.Err())
			}
			if !IsTransient(err) {
				return nil, err
			}
			// Transient poll failures are absorbed; the next tick retries.
		} else {
			switch dep.Status {
			case StatusActive:
				return dep, nil
			case StatusFailed:
				return dep, &DeploymentFailedError{ID: id, Reason: dep.Error}
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("deployment %s did not complete: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// newRequest builds a request against the API base URL with auth headers set.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url %s: %w", c.apiURL, err)
	}
	basePath := strings.TrimSuffix(u.Path, "/")
	u.Path = path.Join(basePath, strings.TrimPrefix(endpoint, "/"))

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, u.String(), err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// doRequest executes the request, classifies failures, and decodes JSON into out.
func (c *Client) doRequest(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Op: op, Err: cause}
		case resp.StatusCode == http.StatusRequestEntityTooLarge:
			return &TooLargeError{Op: op, Err: cause}
		case resp.StatusCode == http.StatusTooManyRequests:
			return &RateLimitError{Op: op, Err: cause}
		case resp.StatusCode >= 500:
			return &TransientError{Op: op, Err: cause}
		default:
			return fmt.Errorf("%s: %w", op, cause)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
