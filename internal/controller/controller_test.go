package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/pkg/serverutils"
	"companion-be/pkg/consensus"
	"companion-be/pkg/facestore"
)

type fakeRecognition struct {
	err  error
	last dto.RecognizeRequest
}

func (f *fakeRecognition) Recognize(_ context.Context, req dto.RecognizeRequest) (*dto.RecognizeResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.RecognizeResponse{UserStatus: dto.UserStatusDetecting, IsPreliminary: true, Message: "Collecting frames (1/5)"}, nil
}

func (f *fakeRecognition) ResetDetection(_ context.Context, req dto.ResetDetectionRequest) (*dto.ResetDetectionResponse, error) {
	return &dto.ResetDetectionResponse{SessionId: req.SessionId, Cleared: true}, nil
}

type fakeFaces struct{}

func (fakeFaces) List(context.Context) ([]dto.FaceUserResponse, error) {
	return []dto.FaceUserResponse{{Id: "user1"}}, nil
}

func (fakeFaces) Get(_ context.Context, id string) (*dto.FaceUserResponse, error) {
	if id != "user1" {
		return nil, facestore.ErrUserNotFound
	}
	return &dto.FaceUserResponse{Id: id}, nil
}

func (fakeFaces) FindByName(_ context.Context, name string) (*dto.FaceUserResponse, error) {
	if name != "Ada" {
		return nil, facestore.ErrUserNotFound
	}
	return &dto.FaceUserResponse{Id: "user1", Name: name, HasName: true}, nil
}

func (fakeFaces) Rename(_ context.Context, id string, req dto.RenameFaceUserRequest) (*dto.FaceUserResponse, error) {
	return &dto.FaceUserResponse{Id: id, Name: req.Name, HasName: true}, nil
}

func newApp(c interface{ RegisterRoutes(fiber.Router) }) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	c.RegisterRoutes(app.Group("/api"))
	return app
}

func operatorToken(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "operator", "user_id": "ops"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, app *fiber.App, method, path, body, token string) (int, serverutils.Response[json.RawMessage]) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, _ := io.ReadAll(resp.Body)
	var out serverutils.Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestFaceControllerRecognize(t *testing.T) {
	rec := &fakeRecognition{}
	app := newApp(NewFaceController(rec, fakeFaces{}))

	status, out := do(t, app, "POST", "/api/face/recognize", `{"images":["aGk="],"session_id":"s1","connection_id":"c1"}`, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Collecting frames (1/5)", out.Message)
	assert.Equal(t, "c1", rec.last.ConnectionId)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, fiber.StatusBadRequest},
		{"no images", `{"images":[],"session_id":"s1"}`, fiber.StatusBadRequest},
		{"too many images", `{"images":["a","a","a","a","a","a"],"session_id":"s1"}`, fiber.StatusBadRequest},
		{"no session", `{"images":["aGk="]}`, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, app, "POST", "/api/face/recognize", tt.body, "")
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestFaceControllerMapsServiceErrors(t *testing.T) {
	rec := &fakeRecognition{err: consensus.ErrModelUnavailable}
	app := newApp(NewFaceController(rec, fakeFaces{}))

	status, out := do(t, app, "POST", "/api/face/recognize", `{"images":["aGk="],"session_id":"s1"}`, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, fiber.StatusServiceUnavailable, out.Code)

	rec.err = consensus.ErrBatchInFlight
	status, _ = do(t, app, "POST", "/api/face/recognize", `{"images":["aGk="],"session_id":"s1"}`, "")
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestFaceControllerUsers(t *testing.T) {
	app := newApp(NewFaceController(&fakeRecognition{}, fakeFaces{}))

	status, _ := do(t, app, "GET", "/api/face/users", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, out := do(t, app, "GET", "/api/face/users?name=Ada", "", "")
	require.Equal(t, fiber.StatusOK, status)
	var found []dto.FaceUserResponse
	require.NoError(t, json.Unmarshal(out.Data, &found))
	require.Len(t, found, 1)
	assert.Equal(t, "user1", found[0].Id)

	status, _ = do(t, app, "GET", "/api/face/users?name=Nobody", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, "GET", "/api/face/users/user1", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = do(t, app, "GET", "/api/face/users/user9", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, out = do(t, app, "PUT", "/api/face/users/user1/name", `{"name":"Ada"}`, "")
	require.Equal(t, fiber.StatusOK, status)
	var user dto.FaceUserResponse
	require.NoError(t, json.Unmarshal(out.Data, &user))
	assert.Equal(t, "Ada", user.Name)

	status, _ = do(t, app, "PUT", "/api/face/users/user1/name", `{"name":""}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

type fakeAdmin struct{}

func (fakeAdmin) GetLogs(_ context.Context, level string, page, limit int) (*dto.LogPage, error) {
	return &dto.LogPage{Items: []dto.LogListResponse{}, Page: page, Limit: limit}, nil
}

func (fakeAdmin) GetLogDetail(_ context.Context, id string) (*dto.LogDetailResponse, error) {
	return nil, logger.ErrLogNotFound
}

func (fakeAdmin) Health(context.Context) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{Status: "ok"}, nil
}

func TestAdminController(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	app := newApp(NewAdminController(fakeAdmin{}))
	token := operatorToken(t)

	status, _ := do(t, app, "GET", "/api/health", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = do(t, app, "GET", "/api/admin/logs", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out := do(t, app, "GET", "/api/admin/logs?page=3&limit=20", "", token)
	require.Equal(t, fiber.StatusOK, status)
	var page dto.LogPage
	require.NoError(t, json.Unmarshal(out.Data, &page))
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 20, page.Limit)

	status, _ = do(t, app, "GET", "/api/admin/logs/abc", "", token)
	assert.Equal(t, fiber.StatusNotFound, status)
}

type fakeConversations struct {
	lastCleanup dto.CleanupConversationsRequest
}

func (f *fakeConversations) Stats(context.Context) (*dto.ConversationStatsResponse, error) {
	return &dto.ConversationStatsResponse{Users: 2}, nil
}

func (f *fakeConversations) History(_ context.Context, userID string) (*dto.ConversationHistoryResponse, error) {
	return &dto.ConversationHistoryResponse{UserId: userID, Sessions: []dto.ConversationSessionResponse{}}, nil
}

func (f *fakeConversations) Cleanup(_ context.Context, req dto.CleanupConversationsRequest) (*dto.CleanupConversationsResponse, error) {
	f.lastCleanup = req
	days := 30
	if req.DaysOld != nil {
		days = *req.DaysOld
	}
	return &dto.CleanupConversationsResponse{DaysOld: days}, nil
}

func (f *fakeConversations) ForceSave(context.Context) (*dto.ForceSaveResponse, error) {
	return &dto.ForceSaveResponse{Documents: []string{"faces.json", "conversations.json"}}, nil
}

func TestConversationController(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	convs := &fakeConversations{}
	app := newApp(NewConversationController(convs))
	token := operatorToken(t)

	status, _ := do(t, app, "GET", "/api/conversations/stats", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out := do(t, app, "GET", "/api/conversations/user3/history", "", token)
	require.Equal(t, fiber.StatusOK, status)
	var hist dto.ConversationHistoryResponse
	require.NoError(t, json.Unmarshal(out.Data, &hist))
	assert.Equal(t, "user3", hist.UserId)

	status, _ = do(t, app, "POST", "/api/conversations/cleanup", "", token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, convs.lastCleanup.DaysOld)

	status, out = do(t, app, "POST", "/api/conversations/cleanup", `{"daysOld":7}`, token)
	require.Equal(t, fiber.StatusOK, status)
	var cleaned dto.CleanupConversationsResponse
	require.NoError(t, json.Unmarshal(out.Data, &cleaned))
	assert.Equal(t, 7, cleaned.DaysOld)

	status, _ = do(t, app, "POST", "/api/conversations/cleanup", `{"daysOld":-1}`, token)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "POST", "/api/conversations/save", "", token)
	assert.Equal(t, fiber.StatusOK, status)
}
