package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server     *httptest.Server
	hub        *Hub
	session    *service.Session
	presenters *service.PresenterRegistry
}

func newTestEnv(t *testing.T, cfg HandlerConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(HubConfig{SendBuffer: 64})
	session := service.NewSession(service.Options{Publisher: hub})
	presenters := service.NewPresenterRegistry()

	r := gin.New()
	r.GET("/api/ws", NewHandler(hub, session, presenters, cfg).ServeWS)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		session.Close()
		hub.CloseAll()
		srv.Close()
	})
	return &testEnv{server: srv, hub: hub, session: session, presenters: presenters}
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/ws"
	if token != "" {
		u += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	// 收到自己的连接数消息说明已注册到Hub
	readUntil(t, conn, models.EventLiveConnectionCount)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, typ string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.InboundMessage{ID: id, Type: typ, Data: raw}))
}

// readUntil returns every frame read up to and including the first of type want.
func readUntil(t *testing.T, conn *websocket.Conn, want models.EventType) []frame {
	t.Helper()
	var frames []frame
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type == want {
			return frames
		}
	}
}

func lastAck(t *testing.T, frames []frame) models.AckPayload {
	t.Helper()
	var ack models.AckPayload
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &ack))
	return ack
}

func indexOf(frames []frame, typ models.EventType) int {
	for i, f := range frames {
		if f.Type == typ {
			return i
		}
	}
	return -1
}

func TestServeWS_CreatePollWithTextOptions(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	_, token := env.presenters.Issue()
	presenter := env.dial(t, token)

	send(t, presenter, "1", OpCreatePoll, map[string]interface{}{
		"question": "Color?",
		"options":  []string{"Red", "Blue"},
		"timer":    30,
	})
	ack := lastAck(t, readUntil(t, presenter, models.EventAck))
	require.True(t, ack.Success, ack.Message)

	snap := env.session.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Options, 2)
	assert.Equal(t, "Red", snap.Options[0].Text)
	assert.Equal(t, 1, snap.Options[1].Index)
}

func TestServeWS_VoteFlow(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	_, token := env.presenters.Issue()

	presenter := env.dial(t, token)
	student := env.dial(t, "")

	send(t, presenter, "1", OpCreatePoll, map[string]interface{}{
		"question": "Color?",
		"options":  []map[string]string{{"text": "Red"}, {"text": "Blue"}},
		"timer":    "30",
	})
	frames := readUntil(t, presenter, models.EventAck)
	ack := lastAck(t, frames)
	require.True(t, ack.Success, ack.Message)
	assert.Equal(t, "1", ack.ID)
	startedAt := indexOf(frames, models.EventPollStarted)
	require.NotEqual(t, -1, startedAt)
	assert.Less(t, startedAt, len(frames)-1)

	started := readUntil(t, student, models.EventPollStarted)
	var payload models.PollStartedPayload
	require.NoError(t, json.Unmarshal(started[len(started)-1].Data, &payload))
	assert.Equal(t, "Color?", payload.Question)
	assert.Equal(t, 30, payload.Timer)

	send(t, student, "2", OpSubmitVote, models.VoteInput{PollID: payload.PollID, Username: "alice", Option: "Red"})
	frames = readUntil(t, student, models.EventAck)
	ack = lastAck(t, frames)
	require.True(t, ack.Success, ack.Message)
	tallyAt := indexOf(frames, models.EventTallyUpdated)
	require.NotEqual(t, -1, tallyAt)
	assert.JSONEq(t, `{"Red":1,"Blue":0}`, string(frames[tallyAt].Data))

	// 重复投票被拒绝，且不广播
	send(t, student, "3", OpSubmitVote, models.VoteInput{PollID: payload.PollID, Username: "alice", Option: "Blue"})
	frames = readUntil(t, student, models.EventAck)
	ack = lastAck(t, frames)
	assert.False(t, ack.Success)
	assert.Equal(t, "already_voted", ack.Reason)
	assert.Equal(t, -1, indexOf(frames, models.EventTallyUpdated))

	assert.Equal(t, models.Tally{"Red": 1, "Blue": 0}, env.session.Tally(payload.PollID))
}

func TestServeWS_CreatePollRequiresToken(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	conn := env.dial(t, "")

	send(t, conn, "x", OpCreatePoll, map[string]interface{}{
		"question": "Q", "options": []map[string]string{{"text": "A"}}, "timer": 10,
	})
	ack := lastAck(t, readUntil(t, conn, models.EventAck))
	assert.False(t, ack.Success)
	assert.Equal(t, "not_presenter", ack.Reason)
	assert.Nil(t, env.session.Snapshot())
}

func TestServeWS_InvalidTokenRejected(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/ws?token=bogus"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_Kick(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	_, token := env.presenters.Issue()
	presenter := env.dial(t, token)
	alice := env.dial(t, "")

	send(t, alice, "j", OpJoinRoster, models.JoinRosterInput{Username: "alice"})
	frames := readUntil(t, alice, models.EventAck)
	require.True(t, lastAck(t, frames).Success)
	assert.NotEqual(t, -1, indexOf(frames, models.EventRosterChanged))

	send(t, presenter, "k", OpKick, models.KickInput{Username: "alice"})
	require.True(t, lastAck(t, readUntil(t, presenter, models.EventAck)).Success)

	frames = readUntil(t, alice, models.EventRemoved)
	rosterAt := indexOf(frames, models.EventRosterChanged)
	require.NotEqual(t, -1, rosterAt)
	var roster models.RosterPayload
	require.NoError(t, json.Unmarshal(frames[rosterAt].Data, &roster))
	assert.NotContains(t, roster.Identities, "alice")
	assert.Empty(t, env.session.Roster())
}

func TestServeWS_KickRequiresToken(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	conn := env.dial(t, "")
	send(t, conn, "k", OpKick, models.KickInput{Username: "alice"})
	assert.Equal(t, "not_presenter", lastAck(t, readUntil(t, conn, models.EventAck)).Reason)
}

func TestServeWS_ChatUsesRosterIdentity(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	conn := env.dial(t, "")

	send(t, conn, "j", OpJoinRoster, models.JoinRosterInput{Username: "bob"})
	readUntil(t, conn, models.EventAck)

	send(t, conn, "c", OpPostChatMessage, models.ChatMessage{Text: "hello"})
	frames := readUntil(t, conn, models.EventAck)
	chatAt := indexOf(frames, models.EventChatMessage)
	require.NotEqual(t, -1, chatAt)

	var msg models.ChatMessage
	require.NoError(t, json.Unmarshal(frames[chatAt].Data, &msg))
	assert.Equal(t, "bob", msg.User)
	assert.Equal(t, "hello", msg.Text)
	assert.Len(t, env.session.ChatMessages(), 1)
}

func TestServeWS_RateLimited(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{MessagesPerSecond: 0.001, Burst: 1})
	conn := env.dial(t, "")

	send(t, conn, "1", OpPing, nil)
	assert.True(t, lastAck(t, readUntil(t, conn, models.EventAck)).Success)

	send(t, conn, "2", OpPing, nil)
	ack := lastAck(t, readUntil(t, conn, models.EventAck))
	assert.False(t, ack.Success)
	assert.Equal(t, "rate_limited", ack.Reason)
}

func TestServeWS_BadRequests(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	conn := env.dial(t, "")

	send(t, conn, "u", "dance", nil)
	assert.Equal(t, "unknown_type", lastAck(t, readUntil(t, conn, models.EventAck)).Reason)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid_request", lastAck(t, readUntil(t, conn, models.EventAck)).Reason)

	send(t, conn, "v", OpSubmitVote, models.VoteInput{Username: "carol", Option: "Red"})
	assert.Equal(t, "no_active_poll", lastAck(t, readUntil(t, conn, models.EventAck)).Reason)

	// 有进行中的投票时也必须带 pollId
	_, err := env.session.CreatePoll("teacher_1", models.CreatePollInput{
		Question: "Color?",
		Options:  []models.Option{{Text: "Red"}},
		Timer:    30,
	})
	require.NoError(t, err)
	send(t, conn, "w", OpSubmitVote, models.VoteInput{Username: "carol", Option: "Red"})
	assert.Equal(t, "no_active_poll", lastAck(t, readUntil(t, conn, models.EventAck)).Reason)
}

func TestServeWS_ConnectionCount(t *testing.T) {
	env := newTestEnv(t, HandlerConfig{})
	first := env.dial(t, "")

	second := env.dial(t, "")
	frames := readUntil(t, first, models.EventLiveConnectionCount)
	assert.JSONEq(t, `{"studentCount":2}`, string(frames[len(frames)-1].Data))

	second.Close()
	frames = readUntil(t, first, models.EventLiveConnectionCount)
	assert.JSONEq(t, `{"studentCount":1}`, string(frames[len(frames)-1].Data))
}
