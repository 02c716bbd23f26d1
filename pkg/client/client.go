// Package client is the Go client of the SimplePAES session API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

// Identity headers understood by the server when it runs without JWT
const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
)

// Client calls the session API as one user
type Client struct {
	baseURL    string
	user       types.UserRef
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken authenticates with a bearer token instead of identity headers
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL acting as user
func New(baseURL string, user types.UserRef, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// User returns the identity the client acts as
func (c *Client) User() types.UserRef {
	return c.user
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)
	return req, nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
		return
	}
	if c.user.ID != "" {
		h.Set(headerUserID, c.user.ID)
		if c.user.DisplayName != "" {
			h.Set(headerUserName, c.user.DisplayName)
		}
	}
}

// do sends the request and decodes a JSON body into out for any status in ok
func (c *Client) do(req *http.Request, out interface{}, ok ...int) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	for _, code := range ok {
		if resp.StatusCode == code {
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, apiErr.Message)
}

// ListSessions returns the available sessions, optionally narrowed to level
func (c *Client) ListSessions(ctx context.Context, level string) ([]*types.Session, error) {
	path := "/api/sessions"
	if level != "" {
		path += "?level=" + url.QueryEscape(level)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Sessions []*types.Session `json:"sessions"`
	}
	if err := c.do(req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession returns one session
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Session *types.Session `json:"session"`
	}
	if err := c.do(req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// CreateSession creates a session hosted by the client user
func (c *Client) CreateSession(ctx context.Context, input types.NewSession) (*types.Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/sessions", input)
	if err != nil {
		return nil, err
	}
	var out struct {
		Session *types.Session `json:"session"`
	}
	if err := c.do(req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// UpdateStatuses asks the server to reconcile time-based statuses
func (c *Client) UpdateStatuses(ctx context.Context) ([]types.Transition, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/sessions/statuses", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Transitions []types.Transition `json:"transitions"`
	}
	if err := c.do(req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// action performs a session action and returns its Result. Business failures
// come back as a Result with Success false, not as an error.
func (c *Client) action(ctx context.Context, method, sessionID, verb string, body interface{}) (interfaces.Result, error) {
	req, err := c.newRequest(ctx, method, "/api/sessions/"+url.PathEscape(sessionID)+"/"+verb, body)
	if err != nil {
		return interfaces.Result{}, err
	}
	var result interfaces.Result
	err = c.do(req, &result,
		http.StatusOK, http.StatusBadRequest, http.StatusForbidden,
		http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError)
	return result, err
}

// Register signs the user up for a scheduled session
func (c *Client) Register(ctx context.Context, sessionID string) (interfaces.Result, error) {
	return c.action(ctx, http.MethodPost, sessionID, "register", nil)
}

// Unregister withdraws the user's registration
func (c *Client) Unregister(ctx context.Context, sessionID string) (interfaces.Result, error) {
	return c.action(ctx, http.MethodDelete, sessionID, "register", nil)
}

// Join enters the lobby or active room
func (c *Client) Join(ctx context.Context, sessionID string) (interfaces.Result, error) {
	return c.action(ctx, http.MethodPost, sessionID, "join", nil)
}

// Leave exits the room
func (c *Client) Leave(ctx context.Context, sessionID string) (interfaces.Result, error) {
	return c.action(ctx, http.MethodDelete, sessionID, "join", nil)
}

// SetStatus moves a hosted session forward
func (c *Client) SetStatus(ctx context.Context, sessionID string, status types.SessionStatus) (interfaces.Result, error) {
	return c.action(ctx, http.MethodPut, sessionID, "status", map[string]types.SessionStatus{"status": status})
}
