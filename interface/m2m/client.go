package m2m

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/airbusgeo/landsat-fetcher/service"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

const DefaultBaseURL = "https://m2m.cr.usgs.gov/api/api/json/stable/"

// AuthError is a fatal authentication failure: the run cannot proceed.
type AuthError struct {
	Err error
}

func (e AuthError) Error() string { return fmt.Sprintf("authentication failed: %v", e.Err) }
func (e AuthError) Unwrap() error { return e.Err }

// APIError is a service-level error reported in the response envelope
// (a non-empty errorCode, possibly on HTTP 200).
type APIError struct {
	Code    string
	Message string
}

func (e APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// sessionExpired reports whether the error means the API key is no longer valid.
func (e APIError) sessionExpired() bool {
	switch e.Code {
	case "AUTH_EXPIRED", "AUTH_INVALID", "AUTH_KEY_INVALID", "AUTH_UNAUTHORIZED":
		return true
	}
	return false
}

// Credentials are the Earthdata username and application token, opaque to the
// client.
type Credentials struct {
	Username string
	Token    string
}

// Client owns the authenticated M2M session. All catalog and resolution calls
// go through Do so that re-authentication is centralized. A Client is safe for
// concurrent use; the API key is refreshed under a single-writer rule.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client

	mu         sync.Mutex
	apiKey     string
	generation uint64
}

// NewClient creates a Client for the given service root. An empty baseURL
// selects the production M2M endpoint.
func NewClient(baseURL string, creds Credentials) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Authenticate opens the session. It must be called once before Do.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// loginLocked requests a fresh API key. c.mu must be held.
func (c *Client) loginLocked(ctx context.Context) error {
	data, err := c.post(ctx, "login-token", "", loginTokenRequest{Username: c.creds.Username, Token: c.creds.Token})
	if err != nil {
		return AuthError{Err: err}
	}
	var apiKey string
	if err := json.Unmarshal(data, &apiKey); err != nil || apiKey == "" {
		return AuthError{Err: fmt.Errorf("unexpected login-token response: %s", data)}
	}
	c.apiKey = apiKey
	c.generation++
	log.Logger(ctx).Debug("m2m session opened")
	return nil
}

// Logout closes the session. Best effort: the key expires server-side anyway.
func (c *Client) Logout(ctx context.Context) error {
	apiKey, _ := c.session()
	if apiKey == "" {
		return nil
	}
	if _, err := c.post(ctx, "logout", apiKey, struct{}{}); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.mu.Lock()
	c.apiKey = ""
	c.mu.Unlock()
	return nil
}

// Do executes an authenticated API call and decodes the data envelope into
// out (which may be nil). On an expired session it re-authenticates exactly
// once and replays the request; a second expiry within the same call is
// returned as a fatal AuthError.
func (c *Client) Do(ctx context.Context, endpoint string, payload, out interface{}) error {
	apiKey, generation := c.session()
	if apiKey == "" {
		return AuthError{Err: fmt.Errorf("no session: call Authenticate first")}
	}

	data, err := c.post(ctx, endpoint, apiKey, payload)
	if expired(err) {
		log.Logger(ctx).Sugar().Warnf("m2m session expired during %s, re-authenticating", endpoint)
		if err = c.refresh(ctx, generation); err != nil {
			return err
		}
		apiKey, _ = c.session()
		if data, err = c.post(ctx, endpoint, apiKey, payload); expired(err) {
			return AuthError{Err: fmt.Errorf("session expired twice during %s: %w", endpoint, err)}
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", endpoint, err)
	}
	return nil
}

// session returns the current API key and its generation.
func (c *Client) session() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey, c.generation
}

// refresh re-authenticates unless another caller already swapped the key
// since the stale generation was read. Callers blocked here proceed with the
// new key, never the stale one.
func (c *Client) refresh(ctx context.Context, stale uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != stale {
		return nil
	}
	return c.loginLocked(ctx)
}

// post sends one JSON request and unwraps the {data,errorCode,errorMessage}
// envelope. 5xx and transport failures are marked temporary.
func (c *Client) post(ctx context.Context, endpoint, apiKey string, payload interface{}) (json.RawMessage, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Auth-Token", apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("post %s: %w", endpoint, err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("post %s: read body: %w", endpoint, err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, APIError{Code: "AUTH_UNAUTHORIZED", Message: resp.Status}
	case resp.StatusCode >= 500:
		return nil, service.MakeTemporary(fmt.Errorf("post %s: %s", endpoint, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("post %s: %s: %s", endpoint, resp.Status, respBody)
	}

	envelope := struct {
		Data         json.RawMessage `json:"data"`
		ErrorCode    string          `json:"errorCode"`
		ErrorMessage string          `json:"errorMessage"`
	}{}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("post %s: decode envelope: %w (response: %s)", endpoint, err, respBody)
	}
	if envelope.ErrorCode != "" {
		return nil, APIError{Code: envelope.ErrorCode, Message: envelope.ErrorMessage}
	}
	return envelope.Data, nil
}

// expired returns true if err denotes an expired or rejected session
func expired(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.sessionExpired()
}
