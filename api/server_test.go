package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/teammatch/api"
	"github.com/Aidin1998/teammatch/common/auth"
	"github.com/Aidin1998/teammatch/internal/database"
	"github.com/Aidin1998/teammatch/internal/matching"
	"github.com/Aidin1998/teammatch/internal/notification"
	"github.com/Aidin1998/teammatch/internal/ws"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var authCfg = auth.AuthorizationConfig{Secret: []byte("test-secret-0123456789"), Issuer: "teammatch"}

type stubNotifier struct {
	mu   sync.Mutex
	sent map[string][]models.MatchStatus
}

func (s *stubNotifier) SendToUser(_ context.Context, userID, _ string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string][]models.MatchStatus)
	}
	status, _ := payload.(models.MatchStatus)
	s.sent[userID] = append(s.sent[userID], status)
	return nil
}

type stubQueue struct {
	mu   sync.Mutex
	reqs []models.MatchRequest
}

func (s *stubQueue) Enqueue(_ context.Context, req models.MatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	svc      matching.MatchService
	notifier *stubNotifier
	queue    *stubQueue
}

// helper to set up router over an in-memory store with teams H (leader uh) and C1 (leader u1)
func setupRouter(t *testing.T, checks map[string]api.HealthCheck) *testEnv {
	t.Helper()
	notifier := &stubNotifier{}
	env := newEnv(t, checks, nil, notifier)
	env.notifier = notifier
	return env
}

func newEnv(t *testing.T, checks map[string]api.HealthCheck, hub *ws.Hub, notifier notification.Gateway) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.Create(&[]models.Team{
		{TeamID: "H", Name: "Hornets", EventType: models.EventSoccer, Region: "Seoul", Rating: 1000},
		{TeamID: "C1", Name: "Cobras", EventType: models.EventSoccer, Region: "Seoul", Rating: 1000},
	}).Error)
	require.NoError(t, db.Create(&[]models.TeamMember{
		{TeamID: "H", UserID: "uh", Role: models.RoleLeader},
		{TeamID: "C1", UserID: "u1", Role: models.RoleLeader},
	}).Error)

	queue := &stubQueue{}
	svc, err := matching.NewService(logger, db, matching.NewTeamDirectory(db), queue, notifier)
	require.NoError(t, err)

	srv := api.NewServer(logger, api.Options{Auth: authCfg, Checks: checks}, svc, hub)
	return &testEnv{router: srv.Router(), svc: svc, queue: queue}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.SignToken(authCfg, userID, time.Minute)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type problem struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Errors []struct {
		Field string `json:"field"`
	} `json:"errors"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestHealthCheck(t *testing.T) {
	env := setupRouter(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHealthCheckDegraded(t *testing.T) {
	env := setupRouter(t, map[string]api.HealthCheck{
		"database": func(context.Context) error { return nil },
		"queue":    func(context.Context) error { return errors.New("connection refused") },
	})
	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "connection refused", resp.Checks["queue"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupRouter(t, nil)
	env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "teammatch_http_requests_total")
}

func TestMatchingsUnauthorized(t *testing.T) {
	env := setupRouter(t, nil)
	w := env.do(t, http.MethodGet, "/api/v1/matchings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, decodeProblem(t, w).Status)
}

func TestManualMatchFlow(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/matchings", "uh", map[string]interface{}{
		"team_id": "H", "match_day": "2030-05-01", "match_time": "18:30", "loan": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Matching
	decodeData(t, w, &created)
	assert.Equal(t, models.StateWaiting, created.State)
	assert.Equal(t, "Seoul", created.Region)
	base := "/api/v1/matchings/" + created.MatchID

	w = env.do(t, http.MethodPost, base+"/challenges", "u1", map[string]string{"team_id": "C1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, base+"/challenges", "u1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "only the host leader sees bidders")

	w = env.do(t, http.MethodGet, base+"/challenges", "uh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var challengers []matching.TeamSummary
	decodeData(t, w, &challengers)
	require.Len(t, challengers, 1)
	assert.Equal(t, "Cobras", challengers[0].Name)

	w = env.do(t, http.MethodPatch, base+"/accept/C1", "uh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted models.Matching
	decodeData(t, w, &accepted)
	assert.Equal(t, models.StateSuccess, accepted.State)

	w = env.do(t, http.MethodPatch, base+"/result", "uh", map[string]int{"host_score": 3, "challenger_score": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var done models.Matching
	decodeData(t, w, &done)
	assert.Equal(t, models.StateComplete, done.State)
	require.NotNil(t, done.WinnerTeamID)
	assert.Equal(t, "H", *done.WinnerTeamID)

	w = env.do(t, http.MethodPatch, base+"/cancel", "uh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decodeProblem(t, w).Type, "invalid-state")

	w = env.do(t, http.MethodGet, "/api/v1/matchings/state/complete", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed []matching.MatchView
	decodeData(t, w, &completed)
	require.Len(t, completed, 1)
	assert.Equal(t, "Cobras", completed[0].ChallengerTeam.Name)

	w = env.do(t, http.MethodGet, "/api/v1/teams/C1/matchings?state=complete", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var teamMatches []matching.MatchView
	decodeData(t, w, &teamMatches)
	assert.Len(t, teamMatches, 1)

	assert.NotEmpty(t, env.notifier.sent["u1"])
}

func TestCreateMatchValidation(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/matchings", "uh", map[string]interface{}{
		"team_id": "H", "match_day": "01/05/2030", "match_time": "18:30",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	require.NotEmpty(t, p.Errors)
	assert.Equal(t, "match_day", p.Errors[0].Field)

	w = env.do(t, http.MethodPost, "/api/v1/matchings", "u1", map[string]interface{}{
		"team_id": "H", "match_day": "2030-05-01", "match_time": "18:30",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/matchings/missing/result", "uh", map[string]int{"host_score": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "challenger_score is required")

	w = env.do(t, http.MethodGet, "/api/v1/matchings/state/waiting", "uh", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/matchings?event_type=curling", "uh", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/matchings/missing", "uh", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMatchingsPaged(t *testing.T) {
	env := setupRouter(t, nil)
	for _, day := range []string{"2030-05-01", "2030-05-02", "2030-05-03"} {
		w := env.do(t, http.MethodPost, "/api/v1/matchings", "uh", map[string]interface{}{
			"team_id": "H", "match_day": day, "match_time": "10:00",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/v1/matchings?event_type=soccer&size=2", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []matching.MatchView `json:"data"`
		Pagination struct {
			Count   int  `json:"count"`
			HasNext bool `json:"has_next"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.True(t, page.Pagination.HasNext)
	assert.Equal(t, "Hornets", page.Data[0].HostTeam.Name)
}

func TestAutoMatchFlow(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/matchings/auto", "u1", map[string]string{"team_id": "C1"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, env.queue.reqs, 1)
	assert.Equal(t, "C1", env.queue.reqs[0].TeamID)

	m, err := env.svc.CreatePairedMatch(context.Background(),
		models.MatchRequest{TeamID: "H", EventType: models.EventSoccer, Region: "Seoul", Rating: 1000},
		models.MatchRequest{TeamID: "C1", EventType: models.EventSoccer, Region: "Seoul", Rating: 1000})
	require.NoError(t, err)

	w = env.do(t, http.MethodGet, "/api/v1/matchings/auto/"+m.MatchID+"/status", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.MatchStatus
	decodeData(t, w, &status)
	assert.Equal(t, models.StateWaiting, status.State)
	assert.Equal(t, "Hornets", status.OpponentName)

	w = env.do(t, http.MethodPost, "/api/v1/matchings/auto/"+m.MatchID+"/respond", "u1", map[string]string{"response": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/matchings/auto/"+m.MatchID+"/respond", "u1", map[string]string{"response": "ACCEPTED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &status)
	assert.Equal(t, models.StateComplete, status.State)

	w = env.do(t, http.MethodPost, "/api/v1/matchings/auto/"+m.MatchID+"/respond", "uh", map[string]string{"response": "REJECTED"})
	assert.Equal(t, http.StatusConflict, w.Code)
}
