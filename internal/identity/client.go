package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	retry "github.com/appleboy/go-httpretry"

	"github.com/spec-kit/auth-gateway/internal/config"
)

// ErrAuthorityUnavailable wraps transport faults, non-2xx answers and
// undecodable bodies from the identity authority.
var ErrAuthorityUnavailable = errors.New("identity authority unavailable")

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 64 << 10

// ExistsResponse is returned by GET /api/users/exists/{id}.
type ExistsResponse struct {
	Exists *bool `json:"exists"`
}

// StatusResponse is returned by GET /api/users/{id}/status.
type StatusResponse struct {
	Enabled *bool `json:"enabled"`
}

// Client queries the user service for account existence and enablement.
type Client struct {
	baseURL     string
	retryClient *retry.Client
}

// NewClient creates a client with bounded timeout and retries.
func NewClient(cfg config.IdentityConfig) (*Client, error) {
	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithInitialRetryDelay(cfg.RetryDelay),
		retry.WithMaxRetryDelay(cfg.MaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return &Client{baseURL: cfg.URL, retryClient: retryClient}, nil
}

// UserExists reports whether the account exists. A response without the
// exists field counts as absent.
func (c *Client) UserExists(ctx context.Context, userID int64) (bool, error) {
	var resp ExistsResponse
	if err := c.getJSON(ctx, "/api/users/exists/"+strconv.FormatInt(userID, 10), &resp); err != nil {
		return false, err
	}
	return resp.Exists != nil && *resp.Exists, nil
}

// UserEnabled reports whether the account is enabled. A response without
// the enabled field counts as enabled.
func (c *Client) UserEnabled(ctx context.Context, userID int64) (bool, error) {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/api/users/"+strconv.FormatInt(userID, 10)+"/status", &resp); err != nil {
		return false, err
	}
	return resp.Enabled == nil || *resp.Enabled, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.retryClient.Get(ctx, c.baseURL+path)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read response", ErrAuthorityUnavailable)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrAuthorityUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthorityUnavailable, err)
	}
	return nil
}
