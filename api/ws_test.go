package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Aidin1998/teammatch/internal/notification"
	"github.com/Aidin1998/teammatch/internal/ws"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWebSocketReceivesAcceptance(t *testing.T) {
	hub := ws.NewHub(4, 16, ws.DefaultReplayTTL, zaptest.NewLogger(t))
	t.Cleanup(hub.Stop)
	env := newEnv(t, nil, hub, notification.NewHubGateway(hub))
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?access_token=" + token(t, "u1")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 1 }, time.Second, 5*time.Millisecond)

	w := env.do(t, http.MethodPost, "/api/v1/matchings", "uh", map[string]interface{}{
		"team_id": "H", "match_day": "2030-05-01", "match_time": "18:30",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Matching
	decodeData(t, w, &created)

	base := "/api/v1/matchings/" + created.MatchID
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, base+"/challenges", "u1", map[string]string{"team_id": "C1"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, base+"/accept/C1", "uh", nil).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, notification.TopicMatch, msg.Topic)

	var status models.MatchStatus
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.Equal(t, created.MatchID, status.MatchID)
	assert.Equal(t, models.StateSuccess, status.State)
	assert.Equal(t, "Hornets", status.OpponentName)
	assert.Equal(t, models.MatchChallengeAccepted, status.Event)
}

func TestWebSocketRejectsBadSince(t *testing.T) {
	hub := ws.NewHub(1, 4, ws.DefaultReplayTTL, zaptest.NewLogger(t))
	t.Cleanup(hub.Stop)
	env := newEnv(t, nil, hub, notification.NewHubGateway(hub))

	w := env.do(t, http.MethodGet, "/api/v1/ws?since=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
