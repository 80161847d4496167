package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Buzzline/internal/adapters/signal"
	"github.com/dkeye/Buzzline/internal/app"
	"github.com/dkeye/Buzzline/internal/app/orch"
	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

const (
	testKey  = "bz_test_key"
	otherKey = "bz_other_key"
)

type stubQuota struct{ decision app.Decision }

func (s *stubQuota) CheckRoomCreationAllowed(context.Context, domain.UserID) app.Decision {
	return s.decision
}

type testEnv struct {
	router *gin.Engine
	orch   *orch.Orchestrator
	quota  *stubQuota
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := core.NewLocalStore()
	store.PutProject(&domain.Project{ID: "p1", UserID: "u1", APIKey: testKey, AllowedOrigins: []string{"https://app.example.com"}}, domain.PlanStarter)
	store.PutProject(&domain.Project{ID: "p2", UserID: "u2", APIKey: otherKey}, domain.PlanFree)

	tokens := app.NewMemoryTokens(nil)
	quota := &stubQuota{decision: app.Decision{Allowed: true, Plan: domain.PlanStarter, MaxParticipants: 4}}
	o := &orch.Orchestrator{
		Rooms:  app.NewRoomStore(store, tokens, app.NewNotifier(), time.Second),
		Tokens: tokens,
		Peers:  core.NewPeerRegistry(),
		Quota:  quota,
		Policy: app.SimplePolicy{},
	}
	ws := signal.NewSignalWSController(o, nil, signal.Options{})
	return &testEnv{
		router: SetupRouter(context.Background(), "test", o, store, ws),
		orch:   o,
		quota:  quota,
	}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any, headers ...string) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

type ticketResp struct {
	RoomID    string `json:"roomId"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func (e *testEnv) createRoom(t *testing.T, body any) ticketResp {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/rooms", testKey, body)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, resp.Success)
	var tk ticketResp
	require.NoError(t, json.Unmarshal(resp.Data, &tk))
	return tk
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestCreateRoom(t *testing.T) {
	e := newTestEnv(t)
	tk := e.createRoom(t, map[string]any{"maxParticipants": 3, "expiresInMinutes": 30, "metadata": map[string]any{"topic": "standup"}})

	assert.NotEmpty(t, tk.RoomID)
	assert.Len(t, tk.Token, app.TokenBytes*2)
	exp, err := time.Parse(time.RFC3339, tk.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), exp, 5*time.Second)

	room, err := e.orch.Rooms.GetRoom(context.Background(), domain.RoomID(tk.RoomID))
	require.NoError(t, err)
	assert.Equal(t, 3, room.MaxParticipants)
	assert.Equal(t, domain.ProjectID("p1"), room.ProjectID)
}

func TestCreateRoom_EmptyBodyUsesDefaults(t *testing.T) {
	e := newTestEnv(t)
	code, resp := e.do(t, http.MethodPost, "/api/rooms", testKey, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
}

func TestCreateRoom_Validation(t *testing.T) {
	e := newTestEnv(t)

	code, resp := e.do(t, http.MethodPost, "/api/rooms", testKey, map[string]any{"maxParticipants": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeValidation, resp.Error.Code)

	code, resp = e.do(t, http.MethodPost, "/api/rooms", testKey, map[string]any{"maxParticipants": 5})
	assert.Equal(t, http.StatusBadRequest, code, "above the plan limit")
	assert.Equal(t, CodeValidation, resp.Error.Code)
}

func TestCreateRoom_UsageLimit(t *testing.T) {
	e := newTestEnv(t)
	e.quota.decision = app.Decision{Reason: "monthly limit of 100 minutes reached on the free plan"}

	code, resp := e.do(t, http.MethodPost, "/api/rooms", testKey, map[string]any{})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUsageLimit, resp.Error.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	e := newTestEnv(t)

	code, resp := e.do(t, http.MethodPost, "/api/rooms", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)

	code, _ = e.do(t, http.MethodPost, "/api/rooms", "bz_unknown", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/api/rooms", "", map[string]any{}, "Authorization", "Bearer "+testKey)
	assert.Equal(t, http.StatusCreated, code)
}

func TestOriginCheck(t *testing.T) {
	e := newTestEnv(t)

	code, resp := e.do(t, http.MethodPost, "/api/rooms", testKey, map[string]any{}, "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, CodeForbidden, resp.Error.Code)

	code, _ = e.do(t, http.MethodPost, "/api/rooms", testKey, map[string]any{}, "Origin", "https://app.example.com")
	assert.Equal(t, http.StatusCreated, code)
}

func TestGetRoomAndPeers(t *testing.T) {
	e := newTestEnv(t)
	tk := e.createRoom(t, map[string]any{})

	code, resp := e.do(t, http.MethodGet, "/api/rooms/"+tk.RoomID, testKey, nil)
	require.Equal(t, http.StatusOK, code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, tk.RoomID, view["id"])
	assert.Equal(t, "waiting", view["status"])
	assert.EqualValues(t, 0, view["participants"])
	assert.NotContains(t, view, "token")

	code, resp = e.do(t, http.MethodGet, "/api/rooms/"+tk.RoomID+"/peers", testKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data), "bare roster array")
	var peers []domain.Peer
	require.NoError(t, json.Unmarshal(resp.Data, &peers))
	assert.Empty(t, peers)

	code, resp = e.do(t, http.MethodGet, "/api/rooms/missing", testKey, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, CodeNotFound, resp.Error.Code)

	code, _ = e.do(t, http.MethodGet, "/api/rooms/"+tk.RoomID, otherKey, nil)
	assert.Equal(t, http.StatusNotFound, code, "rooms of other projects are hidden")
}

func TestJoinToken(t *testing.T) {
	e := newTestEnv(t)
	tk := e.createRoom(t, map[string]any{"maxParticipants": 1})

	code, resp := e.do(t, http.MethodPost, "/api/rooms/"+tk.RoomID+"/join", testKey, nil)
	require.Equal(t, http.StatusOK, code)
	var fresh ticketResp
	require.NoError(t, json.Unmarshal(resp.Data, &fresh))
	assert.NotEqual(t, tk.Token, fresh.Token)

	_, err := e.orch.Tokens.Validate(context.Background(), tk.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	require.NoError(t, e.orch.Rooms.MarkClosed(context.Background(), domain.RoomID(tk.RoomID), time.Now()))
	code, resp = e.do(t, http.MethodPost, "/api/rooms/"+tk.RoomID+"/join", testKey, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, CodeRoomClosed, resp.Error.Code)
}

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestJoinToken_RoomFull(t *testing.T) {
	e := newTestEnv(t)
	tk := e.createRoom(t, map[string]any{"maxParticipants": 1})

	peer, err := domain.NewPeer("a", "")
	require.NoError(t, err)
	_, err = e.orch.Peers.AddPeer(domain.RoomID(tk.RoomID), core.Member{Peer: peer, Conn: nopConn{}}, 1, nil)
	require.NoError(t, err)

	code, resp := e.do(t, http.MethodPost, "/api/rooms/"+tk.RoomID+"/join", testKey, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, CodeRoomFull, resp.Error.Code)
}
