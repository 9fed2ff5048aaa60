// Package api is the HTTP client for the /api/v1 routes. It implements session.Gateway so
// a headless session can drive a real server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"space-pulse/internal/logger"
	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"
	"space-pulse/internal/session"
)

const (
	DefaultTimeout = 10 * time.Second
	apiPrefix      = "/api/v1"
	maxErrorBody   = 4 << 10
)

var _ session.Gateway = (*Client)(nil)

// Error is a non-2xx answer. It unwraps to the domain sentinel whose text the server sent,
// so callers can use errors.Is(err, spaces.ErrNotMember) and friends.
type Error struct {
	Status  int
	Message string
	domain  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.domain }

// known lists the sentinels the server returns by their message text.
var known = []error{
	spaces.ErrSpaceNotFound,
	spaces.ErrNoteNotFound,
	spaces.ErrNotMember,
	spaces.ErrForbidden,
	spaces.ErrAlreadyMember,
	spaces.ErrLastAdmin,
	spaces.ErrInvalidOrder,
	spaces.ErrDraftNote,
	spaces.ErrInvalidInput,
}

// ErrUnauthorized is wrapped by every 401 answer.
var ErrUnauthorized = errors.New("unauthorized")

func newError(status int, msg string) *Error {
	e := &Error{Status: status, Message: msg}
	for _, s := range known {
		if msg == s.Error() {
			e.domain = s
			return e
		}
	}
	if status == http.StatusUnauthorized {
		e.domain = ErrUnauthorized
	}
	return e
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for request failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client calls the server on behalf of one bearer token.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimSuffix(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log)
	return c
}

// Health calls /healthz and returns the reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	err := c.do(ctx, http.MethodGet, c.base+"/healthz", nil, &out)
	if err != nil && out.Status == "" {
		out.Status = "down"
	}
	return out.Status, err
}

func (c *Client) ListSpaces(ctx context.Context) ([]model.Space, error) {
	var out []model.Space
	return out, c.call(ctx, http.MethodGet, "/spaces", nil, &out)
}

func (c *Client) GetSpace(ctx context.Context, spaceID string) (model.Space, error) {
	var out model.Space
	return out, c.call(ctx, http.MethodGet, spacePath(spaceID), nil, &out)
}

func (c *Client) CreateSpace(ctx context.Context, req spaces.CreateSpaceRequest) (model.Space, error) {
	var out model.Space
	return out, c.call(ctx, http.MethodPost, "/spaces", req, &out)
}

func (c *Client) DeleteSpace(ctx context.Context, spaceID string) error {
	return c.call(ctx, http.MethodDelete, spacePath(spaceID), nil, nil)
}

func (c *Client) JoinSpace(ctx context.Context, spaceID string) (model.Member, error) {
	var out model.Member
	return out, c.call(ctx, http.MethodPost, spacePath(spaceID, "join"), nil, &out)
}

func (c *Client) LeaveSpace(ctx context.Context, spaceID string) (model.LeaveResult, error) {
	var out struct {
		SpaceDeleted bool           `json:"spaceDeleted"`
		Members      []model.Member `json:"members"`
	}
	if err := c.call(ctx, http.MethodPost, spacePath(spaceID, "leave"), nil, &out); err != nil {
		return model.LeaveResult{}, err
	}
	return model.LeaveResult{SpaceDeleted: out.SpaceDeleted, Members: out.Members}, nil
}

func (c *Client) UpdateSpaceInfo(ctx context.Context, spaceID string, req spaces.UpdateSpaceInfoRequest) (model.Space, error) {
	var out model.Space
	return out, c.call(ctx, http.MethodPatch, spacePath(spaceID), req, &out)
}

func (c *Client) SendMessage(ctx context.Context, spaceID string, req spaces.SendMessageRequest) (model.Message, error) {
	var out model.Message
	return out, c.call(ctx, http.MethodPost, spacePath(spaceID, "messages"), req, &out)
}

func (c *Client) CreateNote(ctx context.Context, spaceID string, req spaces.NoteRequest) (model.Note, error) {
	var out model.Note
	return out, c.call(ctx, http.MethodPost, spacePath(spaceID, "notes"), req, &out)
}

func (c *Client) UpdateNote(ctx context.Context, spaceID, noteID string, req spaces.NoteRequest) (model.Note, error) {
	var out model.Note
	return out, c.call(ctx, http.MethodPut, spacePath(spaceID, "notes", noteID), req, &out)
}

func (c *Client) DeleteNote(ctx context.Context, spaceID, noteID string) error {
	return c.call(ctx, http.MethodDelete, spacePath(spaceID, "notes", noteID), nil, nil)
}

// ReorderNotes returns the full order the server wrote.
func (c *Client) ReorderNotes(ctx context.Context, spaceID string, req spaces.ReorderNotesRequest) ([]string, error) {
	var out spaces.NoteOrder
	err := c.call(ctx, http.MethodPut, spacePath(spaceID, "notes", "order"), req, &out)
	return out.OrderedIDs, err
}

func (c *Client) SetMemberRole(ctx context.Context, spaceID, userID string, req spaces.SetMemberRoleRequest) ([]model.Member, error) {
	var out struct {
		Members []model.Member `json:"members"`
	}
	err := c.call(ctx, http.MethodPatch, spacePath(spaceID, "members", userID), req, &out)
	return out.Members, err
}

func (c *Client) RemoveMember(ctx context.Context, spaceID, userID string) ([]model.Member, error) {
	var out struct {
		Members []model.Member `json:"members"`
	}
	err := c.call(ctx, http.MethodDelete, spacePath(spaceID, "members", userID), nil, &out)
	return out.Members, err
}

// Me returns the principal the token belongs to.
func (c *Client) Me(ctx context.Context) (model.UserSnapshot, error) {
	var out model.UserSnapshot
	return out, c.call(ctx, http.MethodGet, "/me", nil, &out)
}

func spacePath(spaceID string, rest ...string) string {
	parts := append([]string{"/spaces", url.PathEscape(spaceID)}, rest...)
	for i := 2; i < len(parts); i++ {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	return c.do(ctx, method, c.base+apiPrefix+path, in, out)
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if out != nil {
			// healthz reports its status in the error body
			_ = json.Unmarshal(raw, out)
		}
		apiErr := newError(resp.StatusCode, msg)
		c.log.Debug("api request refused", "method", method, "url", target, "status", resp.StatusCode, "error", msg)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}
