package api

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/notify"
	"github.com/example/workspace-realtime/modules/workspace"
	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketServer struct {
	addr      string
	coord     *workspace.Coordinator
	broadcast *broadcast.BroadcastModule
}

// startSocketServer serves the app on a loopback port with insecure auth.
func startSocketServer(t *testing.T, pingInterval, pongTimeout time.Duration) *socketServer {
	t.Helper()
	m := NewModule(Config{
		Auth:         AuthConfig{Insecure: true},
		PingInterval: pingInterval,
		PongTimeout:  pongTimeout,
	}, &mockLogger{})
	bm := broadcast.NewModule(64, &mockLogger{})
	coord := workspace.NewCoordinator(bm.Registry(), bm.Router(), &mockLogger{})
	m.SetRealtime(bm, coord, notify.NewModule(bm.Router(), &mockLogger{}))
	m.workspaces = &mockWorkspacePort{}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := m.newApp()
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		bm.Registry().CloseAll()
		_ = app.ShutdownWithTimeout(time.Second)
	})

	return &socketServer{addr: ln.Addr().String(), coord: coord, broadcast: bm}
}

func (s *socketServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws?userId=%s&userName=User%%20%s", s.addr, userID, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readFrame(t, conn, time.Second)
	require.Equal(t, broadcast.EventConnected, welcome.Event)
	var connected broadcast.Connected
	require.NoError(t, json.Unmarshal(welcome.Data, &connected))
	assert.Equal(t, userID, connected.UserID)
	assert.NotEmpty(t, connected.ConnectionID)
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event, ackID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(InboundEvent{Event: event, AckID: ackID, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var out outbound
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// readUntil reads frames until match returns true and returns every frame read.
func readUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(outbound) bool) []outbound {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var frames []outbound
	for {
		remaining := time.Until(deadline)
		require.Positive(t, remaining, "timed out after %d frames", len(frames))
		out := readFrame(t, conn, remaining)
		frames = append(frames, out)
		if match(out) {
			return frames
		}
	}
}

func joinWorkspace(t *testing.T, conn *websocket.Conn, workspaceID, ackID string) domain.State {
	t.Helper()
	sendFrame(t, conn, EventWorkspaceJoin, ackID, workspace.JoinRequest{WorkspaceID: workspaceID})
	frames := readUntil(t, conn, time.Second, func(out outbound) bool {
		return out.Event == broadcast.EventAck && out.AckID == ackID
	})
	ack := frames[len(frames)-1]
	require.Nil(t, ack.Error)
	var state domain.State
	require.NoError(t, json.Unmarshal(ack.Data, &state))
	return state
}

func TestSocket_SilentPeerIsDisconnectedByPongTimeout(t *testing.T) {
	srv := startSocketServer(t, 100*time.Millisecond, 400*time.Millisecond)

	connA := srv.dial(t, "A")
	joinWorkspace(t, connA, "ws1", "join-a")

	connB := srv.dial(t, "B")
	state := joinWorkspace(t, connB, "ws1", "join-b")
	require.Len(t, state.Presence, 2)

	// A stops reading, so its pings go unanswered and the read deadline lapses.
	var sawPresence bool
	frames := readUntil(t, connB, 3*time.Second, func(out outbound) bool {
		if out.Event != broadcast.EventActivityNew {
			return false
		}
		var payload broadcast.ActivityNew
		require.NoError(t, json.Unmarshal(out.Data, &payload))
		return payload.Activity.Type == domain.ActivityMemberLeft && payload.Activity.UserID == "A"
	})
	for _, out := range frames {
		if out.Event != broadcast.EventPresenceUpdate {
			continue
		}
		var payload broadcast.PresenceUpdate
		require.NoError(t, json.Unmarshal(out.Data, &payload))
		if len(payload.Members) == 1 && payload.Members[0].UserID == "B" {
			sawPresence = true
		}
	}
	assert.True(t, sawPresence, "B must receive the presence update without A")

	rooms := srv.coord.Rooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].Users)
	assert.Equal(t, 1, rooms[0].Connections)

	// B closes; the room is destroyed and every binding released.
	require.NoError(t, connB.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = connB.Close()

	assert.Eventually(t, func() bool {
		return srv.coord.RoomCount() == 0 && srv.broadcast.Registry().Count() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSocket_PingsKeepReadingPeerAlive(t *testing.T) {
	srv := startSocketServer(t, 50*time.Millisecond, 200*time.Millisecond)

	conn := srv.dial(t, "A")
	joinWorkspace(t, conn, "ws1", "join")

	// Reading answers pings with pongs, which extends the server deadline
	// well past a single pong timeout.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, srv.coord.RoomCount(), "a responsive peer must stay joined")
	assert.Equal(t, 1, srv.broadcast.Registry().Count())

	_ = conn.Close()
	<-done
	assert.Eventually(t, func() bool {
		return srv.coord.RoomCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSocket_ServerCloseEndsWriter(t *testing.T) {
	srv := startSocketServer(t, time.Second, 5*time.Second)

	conn := srv.dial(t, "A")
	joinWorkspace(t, conn, "ws1", "join")

	// Closing the registry binding makes the writer send a close frame.
	srv.broadcast.Registry().CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)

	assert.Eventually(t, func() bool {
		return srv.coord.RoomCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSocket_RejectsAnonymousUpgrade(t *testing.T) {
	srv := startSocketServer(t, time.Second, 5*time.Second)

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", srv.addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Zero(t, srv.broadcast.Registry().Count())
}
