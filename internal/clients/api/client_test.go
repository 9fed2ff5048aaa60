package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

// server answers every request with status and body and records what it saw.
func server(t *testing.T, status int, body any) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.EscapedPath()
		rec.auth = r.Header.Get("Authorization")
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "tok"), rec
}

func TestClientRoutes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func(c *Client) error
		method string
		path   string
	}{
		{"list", func(c *Client) error { _, err := c.ListSpaces(ctx); return err }, http.MethodGet, "/api/v1/spaces"},
		{"get", func(c *Client) error { _, err := c.GetSpace(ctx, "s1"); return err }, http.MethodGet, "/api/v1/spaces/s1"},
		{"create", func(c *Client) error {
			_, err := c.CreateSpace(ctx, spaces.CreateSpaceRequest{Name: "Design"})
			return err
		}, http.MethodPost, "/api/v1/spaces"},
		{"update info", func(c *Client) error {
			name := "Guild"
			_, err := c.UpdateSpaceInfo(ctx, "s1", spaces.UpdateSpaceInfoRequest{Name: &name})
			return err
		}, http.MethodPatch, "/api/v1/spaces/s1"},
		{"delete", func(c *Client) error { return c.DeleteSpace(ctx, "s1") }, http.MethodDelete, "/api/v1/spaces/s1"},
		{"join", func(c *Client) error { _, err := c.JoinSpace(ctx, "s1"); return err }, http.MethodPost, "/api/v1/spaces/s1/join"},
		{"leave", func(c *Client) error { _, err := c.LeaveSpace(ctx, "s1"); return err }, http.MethodPost, "/api/v1/spaces/s1/leave"},
		{"message", func(c *Client) error {
			_, err := c.SendMessage(ctx, "s1", spaces.SendMessageRequest{Content: "hi"})
			return err
		}, http.MethodPost, "/api/v1/spaces/s1/messages"},
		{"create note", func(c *Client) error {
			_, err := c.CreateNote(ctx, "s1", spaces.NoteRequest{Title: "Retro"})
			return err
		}, http.MethodPost, "/api/v1/spaces/s1/notes"},
		{"update note", func(c *Client) error {
			_, err := c.UpdateNote(ctx, "s1", "n1", spaces.NoteRequest{Title: "Retro"})
			return err
		}, http.MethodPut, "/api/v1/spaces/s1/notes/n1"},
		{"delete note", func(c *Client) error { return c.DeleteNote(ctx, "s1", "n1") }, http.MethodDelete, "/api/v1/spaces/s1/notes/n1"},
		{"reorder", func(c *Client) error {
			_, err := c.ReorderNotes(ctx, "s1", spaces.ReorderNotesRequest{OrderedIDs: []string{"n2", "n1"}})
			return err
		}, http.MethodPut, "/api/v1/spaces/s1/notes/order"},
		{"set role", func(c *Client) error {
			_, err := c.SetMemberRole(ctx, "s1", "u2", spaces.SetMemberRoleRequest{Role: model.RoleAdmin})
			return err
		}, http.MethodPatch, "/api/v1/spaces/s1/members/u2"},
		{"remove member", func(c *Client) error { _, err := c.RemoveMember(ctx, "s1", "u2"); return err }, http.MethodDelete, "/api/v1/spaces/s1/members/u2"},
		{"escaped id", func(c *Client) error { _, err := c.GetSpace(ctx, "a/b"); return err }, http.MethodGet, "/api/v1/spaces/a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := server(t, http.StatusNoContent, nil)
			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.method, rec.method)
			assert.Equal(t, tt.path, rec.path)
			assert.Equal(t, "Bearer tok", rec.auth)
		})
	}
}

func TestClientDecodesBodies(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("space", func(t *testing.T) {
		c, rec := server(t, http.StatusCreated, model.Space{ID: "s1", Name: "Design", CreatedAt: now})
		sp, err := c.CreateSpace(ctx, spaces.CreateSpaceRequest{Name: "Design"})
		require.NoError(t, err)
		assert.Equal(t, "s1", sp.ID)
		assert.True(t, now.Equal(sp.CreatedAt))
		assert.Equal(t, "Design", rec.body["name"])
	})

	t.Run("leave", func(t *testing.T) {
		c, _ := server(t, http.StatusOK, map[string]any{"spaceDeleted": true, "members": []any{}})
		res, err := c.LeaveSpace(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, res.SpaceDeleted)
		assert.Empty(t, res.Members)
	})

	t.Run("members", func(t *testing.T) {
		c, rec := server(t, http.StatusOK, map[string]any{"members": []model.Member{{SpaceID: "s1", UserID: "u2", Role: model.RoleAdmin}}})
		members, err := c.SetMemberRole(ctx, "s1", "u2", spaces.SetMemberRoleRequest{Role: model.RoleAdmin})
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, model.RoleAdmin, members[0].Role)
		assert.Equal(t, "ADMIN", rec.body["role"])
	})

	t.Run("reorder", func(t *testing.T) {
		c, rec := server(t, http.StatusOK, spaces.NoteOrder{OrderedIDs: []string{"n2", "n1", "n3"}})
		order, err := c.ReorderNotes(ctx, "s1", spaces.ReorderNotesRequest{OrderedIDs: []string{"n2", "n1"}})
		require.NoError(t, err)
		assert.Equal(t, []any{"n2", "n1"}, rec.body["orderedIds"])
		assert.Equal(t, []string{"n2", "n1", "n3"}, order)
	})
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   error
	}{
		{http.StatusNotFound, spaces.ErrSpaceNotFound.Error(), spaces.ErrSpaceNotFound},
		{http.StatusNotFound, spaces.ErrNoteNotFound.Error(), spaces.ErrNoteNotFound},
		{http.StatusForbidden, spaces.ErrNotMember.Error(), spaces.ErrNotMember},
		{http.StatusForbidden, spaces.ErrForbidden.Error(), spaces.ErrForbidden},
		{http.StatusConflict, spaces.ErrAlreadyMember.Error(), spaces.ErrAlreadyMember},
		{http.StatusConflict, spaces.ErrLastAdmin.Error(), spaces.ErrLastAdmin},
		{http.StatusBadRequest, spaces.ErrInvalidOrder.Error(), spaces.ErrInvalidOrder},
		{http.StatusUnauthorized, "Invalid or expired token", ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			c, _ := server(t, tt.status, map[string]string{"error": tt.msg})
			_, err := c.GetSpace(context.Background(), "s1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.msg, apiErr.Message)
		})
	}

	t.Run("unknown message stays opaque", func(t *testing.T) {
		c, _ := server(t, http.StatusInternalServerError, map[string]string{"error": "failed to load space"})
		_, err := c.GetSpace(context.Background(), "s1")
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Nil(t, apiErr.Unwrap())
		assert.Contains(t, err.Error(), "500")
	})
}

func TestClientHealth(t *testing.T) {
	c, _ := server(t, http.StatusOK, map[string]string{"status": "ok"})
	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status)

	c, _ = server(t, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": "ping failed"})
	status, err = c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "down", status)

	unreachable := New("http://127.0.0.1:1", "")
	status, err = unreachable.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "down", status)
}
