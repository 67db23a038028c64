// Package finuraauth validates bearer tokens against the external session
// authority.
package finuraauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// Validator checks a token with the session authority.
type Validator interface {
	Validate(ctx context.Context, token string, heartbeat bool) (*UserRecord, error)
}

// Client calls POST <BaseURL>/auth/me. It never retries; retry policy belongs
// to the caller.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
		Timeout:    DefaultTimeout,
	}
}

func (c *Client) endpoint(heartbeat bool) (string, error) {
	u, err := url.Parse(c.BaseURL + "/auth/me")
	if err != nil {
		return "", err
	}
	if heartbeat {
		q := u.Query()
		q.Set("heartbeat", "true")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Validate returns the user owning token. A heartbeat check lets the authority
// skip side effects such as refreshing the user's activity timestamp.
func (c *Client) Validate(ctx context.Context, token string, heartbeat bool) (*UserRecord, error) {
	endpoint, err := c.endpoint(heartbeat)
	if err != nil {
		return nil, &ValidationError{Kind: KindUnavailable, Err: fmt.Errorf("invalid session authority url: %w", err)}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, &ValidationError{Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &ValidationError{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		kind := KindRejected
		if resp.StatusCode >= 500 {
			// the authority is failing, not refusing the token
			kind = KindUnavailable
		}
		return nil, &ValidationError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("session authority returned %v", resp.Status),
		}
	}

	var body meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, &ValidationError{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("unable to decode session response: %w", err)}
	}
	if !body.Success {
		return nil, &ValidationError{Kind: KindRejected, StatusCode: resp.StatusCode, Err: fmt.Errorf("session authority refused token")}
	}
	if body.User == nil || body.User.Identity() == "" {
		return nil, &ValidationError{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("session response has no user identity")}
	}
	return body.User, nil
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, token string, heartbeat bool) (*UserRecord, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string, heartbeat bool) (*UserRecord, error) {
	return f(ctx, token, heartbeat)
}
