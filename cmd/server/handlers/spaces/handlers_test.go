package spaces

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"space-pulse/cmd/server/middlewares"
	"space-pulse/cmd/server/testutil"
	"space-pulse/internal/model"
	"space-pulse/internal/services/spaces"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService mocks the spaces service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateSpace(ctx context.Context, who spaces.Principal, req spaces.CreateSpaceRequest) (model.Space, error) {
	args := m.Called(ctx, who, req)
	return args.Get(0).(model.Space), args.Error(1)
}

func (m *MockService) GetSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.Space, error) {
	args := m.Called(ctx, who, spaceID)
	return args.Get(0).(model.Space), args.Error(1)
}

func (m *MockService) ListSpaces(ctx context.Context, who spaces.Principal) ([]model.Space, error) {
	args := m.Called(ctx, who)
	return args.Get(0).([]model.Space), args.Error(1)
}

func (m *MockService) DeleteSpace(ctx context.Context, who spaces.Principal, spaceID string) error {
	return m.Called(ctx, who, spaceID).Error(0)
}

func (m *MockService) JoinSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.Member, error) {
	args := m.Called(ctx, who, spaceID)
	return args.Get(0).(model.Member), args.Error(1)
}

func (m *MockService) LeaveSpace(ctx context.Context, who spaces.Principal, spaceID string) (model.LeaveResult, error) {
	args := m.Called(ctx, who, spaceID)
	return args.Get(0).(model.LeaveResult), args.Error(1)
}

func (m *MockService) UpdateSpaceInfo(ctx context.Context, who spaces.Principal, spaceID string, req spaces.UpdateSpaceInfoRequest) (model.Space, error) {
	args := m.Called(ctx, who, spaceID, req)
	return args.Get(0).(model.Space), args.Error(1)
}

func (m *MockService) SendMessage(ctx context.Context, who spaces.Principal, spaceID string, req spaces.SendMessageRequest) (model.Message, error) {
	args := m.Called(ctx, who, spaceID, req)
	return args.Get(0).(model.Message), args.Error(1)
}

func (m *MockService) CreateNote(ctx context.Context, who spaces.Principal, spaceID string, req spaces.NoteRequest) (model.Note, error) {
	args := m.Called(ctx, who, spaceID, req)
	return args.Get(0).(model.Note), args.Error(1)
}

func (m *MockService) UpdateNote(ctx context.Context, who spaces.Principal, spaceID, noteID string, req spaces.NoteRequest) (model.Note, error) {
	args := m.Called(ctx, who, spaceID, noteID, req)
	return args.Get(0).(model.Note), args.Error(1)
}

func (m *MockService) DeleteNote(ctx context.Context, who spaces.Principal, spaceID, noteID string) error {
	return m.Called(ctx, who, spaceID, noteID).Error(0)
}

func (m *MockService) ReorderNotes(ctx context.Context, who spaces.Principal, spaceID string, req spaces.ReorderNotesRequest) ([]string, error) {
	args := m.Called(ctx, who, spaceID, req)
	order, _ := args.Get(0).([]string)
	return order, args.Error(1)
}

func (m *MockService) SetMemberRole(ctx context.Context, who spaces.Principal, spaceID, targetUserID string, req spaces.SetMemberRoleRequest) ([]model.Member, error) {
	args := m.Called(ctx, who, spaceID, targetUserID, req)
	return args.Get(0).([]model.Member), args.Error(1)
}

func (m *MockService) RemoveMember(ctx context.Context, who spaces.Principal, spaceID, targetUserID string) ([]model.Member, error) {
	args := m.Called(ctx, who, spaceID, targetUserID)
	return args.Get(0).([]model.Member), args.Error(1)
}

var ada = model.UserSnapshot{ID: "u-ada", Email: "ada@example.com", Name: "Ada", Username: "ada"}

type handlersSetup struct {
	svc   *MockService
	app   *fiber.App
	token string
}

func setupHandlers(t *testing.T) *handlersSetup {
	t.Helper()
	svc := &MockService{}
	app := testutil.CreateTestApp(t)
	h := NewHandlers(svc, testutil.CreateTestValidator(t))
	h.Register(app.Group("/api/v1", middlewares.JWT(testutil.CreateTestAuth(t))))
	t.Cleanup(func() { svc.AssertExpectations(t) })

	return &handlersSetup{svc: svc, app: app, token: testutil.CreateTestJWT(t, ada, time.Hour)}
}

func (s *handlersSetup) do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	resp, err := s.app.Test(testutil.CreateAuthenticatedRequest(method, url, body, s.token))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestCreateSpace(t *testing.T) {
	s := setupHandlers(t)
	req := spaces.CreateSpaceRequest{Name: "Design"}
	s.svc.On("CreateSpace", mock.Anything, ada, req).Return(model.Space{ID: "s1", Name: "Design"}, nil)

	resp := s.do(t, "POST", "/api/v1/spaces", req)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "s1", decode[model.Space](t, resp).ID)
}

func TestCreateSpaceValidation(t *testing.T) {
	s := setupHandlers(t)

	resp := s.do(t, "POST", "/api/v1/spaces", spaces.CreateSpaceRequest{})
	assert.Equal(t, 400, resp.StatusCode)
	s.svc.AssertNotCalled(t, "CreateSpace", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequiresToken(t *testing.T) {
	s := setupHandlers(t)
	resp, err := s.app.Test(testutil.CreateJSONRequest("GET", "/api/v1/spaces", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestGetSpaceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{spaces.ErrSpaceNotFound, 404},
		{spaces.ErrNotMember, 403},
		{spaces.ErrGetSpace, 500},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s := setupHandlers(t)
			s.svc.On("GetSpace", mock.Anything, ada, "s1").Return(model.Space{}, tt.err)

			resp := s.do(t, "GET", "/api/v1/spaces/s1", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestListSpaces(t *testing.T) {
	s := setupHandlers(t)
	s.svc.On("ListSpaces", mock.Anything, ada).Return([]model.Space{{ID: "s1"}, {ID: "s2"}}, nil)

	resp := s.do(t, "GET", "/api/v1/spaces", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[[]model.Space](t, resp), 2)
}

func TestLeaveSpace(t *testing.T) {
	s := setupHandlers(t)
	s.svc.On("LeaveSpace", mock.Anything, ada, "s1").Return(model.LeaveResult{SpaceDeleted: true}, nil)

	resp := s.do(t, "POST", "/api/v1/spaces/s1/leave", nil)
	require.Equal(t, 200, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, true, got["spaceDeleted"])
	assert.Equal(t, []any{}, got["members"])
}

func TestJoinSpaceConflict(t *testing.T) {
	s := setupHandlers(t)
	s.svc.On("JoinSpace", mock.Anything, ada, "s1").Return(model.Member{}, spaces.ErrAlreadyMember)

	resp := s.do(t, "POST", "/api/v1/spaces/s1/join", nil)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestNoteRoutes(t *testing.T) {
	s := setupHandlers(t)
	note := spaces.NoteRequest{Title: "Plan", Blocks: []spaces.NoteBlockRequest{{Type: model.BlockText, Content: "x"}}}
	order := spaces.ReorderNotesRequest{OrderedIDs: []string{"n2", "n1"}}

	s.svc.On("CreateNote", mock.Anything, ada, "s1", note).Return(model.Note{ID: "n1"}, nil)
	s.svc.On("UpdateNote", mock.Anything, ada, "s1", "n1", note).Return(model.Note{ID: "n1"}, nil)
	s.svc.On("ReorderNotes", mock.Anything, ada, "s1", order).Return([]string{"n2", "n1", "n3"}, nil)
	s.svc.On("DeleteNote", mock.Anything, ada, "s1", "n1").Return(spaces.ErrNoteNotFound)

	assert.Equal(t, 201, s.do(t, "POST", "/api/v1/spaces/s1/notes", note).StatusCode)
	assert.Equal(t, 200, s.do(t, "PUT", "/api/v1/spaces/s1/notes/n1", note).StatusCode)
	resp := s.do(t, "PUT", "/api/v1/spaces/s1/notes/order", order)
	assert.Equal(t, 200, resp.StatusCode)
	var written spaces.NoteOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&written))
	assert.Equal(t, []string{"n2", "n1", "n3"}, written.OrderedIDs)
	assert.Equal(t, 404, s.do(t, "DELETE", "/api/v1/spaces/s1/notes/n1", nil).StatusCode)
}

func TestReorderRejectsDuplicates(t *testing.T) {
	s := setupHandlers(t)
	resp := s.do(t, "PUT", "/api/v1/spaces/s1/notes/order", spaces.ReorderNotesRequest{OrderedIDs: []string{"n1", "n1"}})
	assert.Equal(t, 400, resp.StatusCode)
}

func TestMemberRoutes(t *testing.T) {
	s := setupHandlers(t)
	members := []model.Member{{UserID: "u-ada", Role: model.RoleAdmin}, {UserID: "u-bob", Role: model.RoleAdmin}}
	s.svc.On("SetMemberRole", mock.Anything, ada, "s1", "u-bob", spaces.SetMemberRoleRequest{Role: model.RoleAdmin}).Return(members, nil)
	s.svc.On("RemoveMember", mock.Anything, ada, "s1", "u-bob").Return([]model.Member(nil), spaces.ErrForbidden)

	resp := s.do(t, "PATCH", "/api/v1/spaces/s1/members/u-bob", spaces.SetMemberRoleRequest{Role: model.RoleAdmin})
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, decode[MembersResponse](t, resp).Members, 2)

	assert.Equal(t, 400, s.do(t, "PATCH", "/api/v1/spaces/s1/members/u-bob", map[string]string{"role": "OWNER"}).StatusCode)
	assert.Equal(t, 403, s.do(t, "DELETE", "/api/v1/spaces/s1/members/u-bob", nil).StatusCode)
}

func TestUpdateInfoAndMessages(t *testing.T) {
	s := setupHandlers(t)
	name := "Guild"
	info := spaces.UpdateSpaceInfoRequest{Name: &name}
	msg := spaces.SendMessageRequest{Content: "hi"}
	s.svc.On("UpdateSpaceInfo", mock.Anything, ada, "s1", info).Return(model.Space{ID: "s1", Name: name}, nil)
	s.svc.On("SendMessage", mock.Anything, ada, "s1", msg).Return(model.Message{ID: "m1", Content: "hi"}, nil)
	s.svc.On("DeleteSpace", mock.Anything, ada, "s1").Return(nil)

	assert.Equal(t, 200, s.do(t, "PATCH", "/api/v1/spaces/s1", info).StatusCode)
	assert.Equal(t, 201, s.do(t, "POST", "/api/v1/spaces/s1/messages", msg).StatusCode)
	assert.Equal(t, 400, s.do(t, "POST", "/api/v1/spaces/s1/messages", spaces.SendMessageRequest{}).StatusCode)
	assert.Equal(t, 204, s.do(t, "DELETE", "/api/v1/spaces/s1", nil).StatusCode)
}
