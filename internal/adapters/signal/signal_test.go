package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/app/relay"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

type testServer struct {
	url   string
	ctl   *SignalWSController
	rooms *app.RoomStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := app.NewRoomStore()
	o := orch.New(app.NewRegistry(), rooms, app.NewGroups(), nil, orch.Options{StrictMembership: true})
	ctl := NewSignalWSController(o, relay.NewFanout(nil), Settings{
		ReadLimit:  1 << 16,
		PingPeriod: 30 * time.Second,
		SendBuffer: 16,
	})

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		ctl.Shutdown()
		srv.Close()
	})
	return &testServer{
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		ctl:   ctl,
		rooms: rooms,
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func recv(t *testing.T, c *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	env, err := domain.ParseEnvelope(data)
	require.NoError(t, err)
	return env
}

func (s *testServer) waitParticipants(t *testing.T, room domain.RoomID, want ...domain.UserID) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := s.rooms.Get(room)
		if len(want) == 0 {
			return !ok
		}
		return ok && assert.ObjectsAreEqual(want, info.Participants)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSignalCallOverWebSocket(t *testing.T) {
	s := newTestServer(t)

	c1 := s.dial(t)
	send(t, c1, `{"event":"call_register","data":"u1"}`)
	send(t, c1, `{"event":"call_create_room","data":{"roomId":"r1","callerId":"u1","callType":"video"}}`)
	s.waitParticipants(t, "r1", "u1")

	c2 := s.dial(t)
	send(t, c2, `{"event":"call_register","data":"u2"}`)
	send(t, c2, `{"event":"call_join_room","data":{"roomId":"r1","userId":"u2"}}`)

	for _, c := range []*websocket.Conn{c1, c2} {
		env := recv(t, c)
		assert.Equal(t, domain.EventParticipantJoined, env.Event)
		assert.JSONEq(t, `{"userId":"u2","roomId":"r1"}`, string(env.Data))
	}

	send(t, c1, `{"event":"call_audio_chunk","data":{"roomId":"r1","chunk":"AAEC","userId":"u1"}}`)
	env := recv(t, c2)
	assert.Equal(t, domain.EventAudioChunk, env.Event)
	assert.Contains(t, string(env.Data), `"chunk":"AAEC"`)
	assert.Contains(t, string(env.Data), `"ts":`)

	require.NoError(t, c1.Close())
	env = recv(t, c2)
	assert.Equal(t, domain.EventParticipantLeft, env.Event)
	assert.JSONEq(t, `{"userId":"u1"}`, string(env.Data))
	s.waitParticipants(t, "r1", "u2")

	send(t, c2, `{"event":"call_leave_room","data":{"roomId":"r1","userId":"u2"}}`)
	s.waitParticipants(t, "r1")
}

func TestSignalJoinMissingRoom(t *testing.T) {
	s := newTestServer(t)
	c := s.dial(t)

	send(t, c, `{"event":"call_join_room","data":{"roomId":"nope","userId":"u1"}}`)
	env := recv(t, c)
	assert.Equal(t, domain.EventError, env.Event)
	assert.JSONEq(t, `{"message":"room not found"}`, string(env.Data))

	send(t, c, `garbage`)
	env = recv(t, c)
	assert.Equal(t, domain.EventError, env.Event)
}

func TestSignalShutdownClosesConnections(t *testing.T) {
	s := newTestServer(t)
	c := s.dial(t)
	send(t, c, `{"event":"call_create_room","data":{"roomId":"r1","callerId":"u1","callType":"audio"}}`)
	s.waitParticipants(t, "r1", "u1")
	require.Equal(t, 1, s.ctl.Live())

	s.ctl.Shutdown()
	assert.Equal(t, 0, s.ctl.Live())
	assert.Equal(t, 0, s.ctl.Relay.Len())
	s.waitParticipants(t, "r1")

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestWsSignalConnTrySend(t *testing.T) {
	conn := &WsSignalConn{send: make(chan core.Frame, 1)}
	require.NoError(t, conn.TrySend([]byte("a")))
	assert.ErrorIs(t, conn.TrySend([]byte("b")), ErrBackpressure)
}
