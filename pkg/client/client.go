// Package client provides the deployment platform API client with retry,
// team scoping and online tracking.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/internal/metrics"
	"github.com/deployview/deployview/pkg/protocol"
	"github.com/deployview/deployview/pkg/retry"
)

// maxFileSize bounds FetchFile reads.
const maxFileSize = 32 << 20

// Client talks to the deployment platform REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu     sync.RWMutex
	online bool
	token  string
	teamID string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Token       string
	TeamID      string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.RetryConfig.OnRetry == nil {
		cfg.RetryConfig.OnRetry = func(attempt int, err error, wait time.Duration) {
			logging.Debug("retrying API request",
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
				logging.Err(err),
			)
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		online:      true,
		token:       cfg.Token,
		teamID:      cfg.TeamID,
	}
}

// SetToken sets the bearer token for requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetTeam switches the team scope. An empty id selects the personal account.
func (c *Client) SetTeam(teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teamID = teamID
}

// Team returns the current team scope.
func (c *Client) Team() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.teamID
}

// IsOnline returns true if the last request reached the API.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("API is reachable again")
		} else {
			logging.Warn("API is unreachable")
		}
	}
	c.online = online
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.Status)
	}
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values) (*http.Request, error) {
	if query == nil {
		query = url.Values{}
	}

	c.mu.RLock()
	token, teamID := c.token, c.teamID
	c.mu.RUnlock()

	if teamID != "" {
		query.Set("teamId", teamID)
	}
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends a GET with retries and hands a 2xx body to read. name labels metrics.
func (c *Client) do(ctx context.Context, name, endpoint string, query url.Values, read func(io.Reader) error) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, cloneValues(query))
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPIRequest(name, 0)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.setOnline(false)
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		metrics.RecordAPIRequest(name, resp.StatusCode)
		c.setOnline(true)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := decodeError(resp)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return retry.Retryable(apiErr)
			}
			return apiErr
		}

		return read(resp.Body)
	})
}

func (c *Client) getJSON(ctx context.Context, name, endpoint string, query url.Values, out interface{}) error {
	return c.do(ctx, name, endpoint, query, func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", name, err)
		}
		return nil
	})
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er protocol.ErrorResponse
	if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Ping verifies the token by fetching the current user.
func (c *Client) Ping(ctx context.Context) (*protocol.UserResponse, error) {
	var user protocol.UserResponse
	if err := c.getJSON(ctx, "user", "/v2/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetDeployment fetches a single deployment by id or URL.
func (c *Client) GetDeployment(ctx context.Context, id string) (*protocol.Deployment, error) {
	var d protocol.Deployment
	if err := c.getJSON(ctx, "deployment", "/v13/deployments/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeployments lists the most recent deployments, optionally for one project.
func (c *Client) ListDeployments(ctx context.Context, projectID string, limit int) ([]protocol.Deployment, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("projectId", projectID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp protocol.DeploymentListResponse
	if err := c.getJSON(ctx, "deployments", "/v6/deployments", q, &resp); err != nil {
		return nil, err
	}
	return resp.Deployments, nil
}

// ListDirectory returns the immediate children of path in a deployment bundle.
func (c *Client) ListDirectory(ctx context.Context, deploymentID, root, path string) ([]protocol.FileEntry, error) {
	q := url.Values{}
	q.Set("root", root)
	q.Set("path", path)
	var entries []protocol.FileEntry
	if err := c.getJSON(ctx, "files", "/v6/deployments/"+url.PathEscape(deploymentID)+"/files", q, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []protocol.FileEntry{}
	}
	return entries, nil
}

// FetchFile returns the contents of a single file in a deployment bundle.
func (c *Client) FetchFile(ctx context.Context, deploymentID, root, path string) ([]byte, error) {
	q := url.Values{}
	q.Set("root", root)
	q.Set("path", path)
	var data []byte
	err := c.do(ctx, "file", "/v7/deployments/"+url.PathEscape(deploymentID)+"/files/get", q, func(r io.Reader) error {
		b, err := io.ReadAll(io.LimitReader(r, maxFileSize+1))
		if err != nil {
			return retry.Retryable(err)
		}
		if len(b) > maxFileSize {
			return fmt.Errorf("file %s exceeds %d bytes", path, maxFileSize)
		}
		data = b
		return nil
	})
	return data, err
}
