package broadcast

import (
	"encoding/json"
	"errors"
	"testing"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func newTestRouter(t *testing.T, bufferSize int, ids ...string) (*Router, map[string]*registry.Connection) {
	t.Helper()
	reg := registry.New(bufferSize)
	conns := make(map[string]*registry.Connection, len(ids))
	for _, id := range ids {
		conn, err := reg.Register(id, registry.Identity{UserID: "user-" + id})
		require.NoError(t, err)
		conns[id] = conn
	}
	return NewRouter(reg, &mockLogger{}), conns
}

func drain(conn *registry.Connection) []Envelope {
	var result []Envelope
	for {
		select {
		case frame := <-conn.Frames():
			var env Envelope
			if err := json.Unmarshal(frame, &env); err == nil {
				result = append(result, env)
			}
		default:
			return result
		}
	}
}

func TestRouter_ToRoomExcludesOrigin(t *testing.T) {
	router, conns := newTestRouter(t, 8, "a", "b", "c")

	sent := router.ToRoom("ws1", []string{"a", "b", "c"}, NewPresenceUpdate("ws1", nil), "b")

	assert.Equal(t, 2, sent)
	assert.Len(t, drain(conns["a"]), 1)
	assert.Len(t, drain(conns["b"]), 0)
	assert.Len(t, drain(conns["c"]), 1)
}

func TestRouter_SlowRecipientDoesNotStallRoom(t *testing.T) {
	router, conns := newTestRouter(t, 1, "slow", "fast")

	// Fill the slow connection's queue.
	require.NoError(t, conns["slow"].Send([]byte(`{}`)))

	sent := router.ToRoom("ws1", []string{"slow", "fast"}, NewPresenceUpdate("ws1", nil), "")

	assert.Equal(t, 1, sent)
	assert.Len(t, drain(conns["fast"]), 1)

	_, dropped := router.Stats()
	assert.Equal(t, int64(1), dropped)
}

func TestRouter_UnknownRecipientIsSkipped(t *testing.T) {
	router, conns := newTestRouter(t, 4, "a")

	sent := router.ToRoom("ws1", []string{"gone", "a"}, NewPresenceUpdate("ws1", nil), "")

	assert.Equal(t, 1, sent)
	assert.Len(t, drain(conns["a"]), 1)
}

func TestRouter_PreservesOrderPerRecipient(t *testing.T) {
	router, conns := newTestRouter(t, 16, "a", "b")
	members := []string{"a", "b"}

	for i := range 5 {
		activity := domain.ActivityEvent{ID: string(rune('0' + i)), Type: domain.ActivityMessage}
		router.ToRoom("ws1", members, NewActivity("ws1", activity), "")
	}

	for _, id := range members {
		envs := drain(conns[id])
		require.Len(t, envs, 5)
		for i, env := range envs {
			data, err := json.Marshal(env.Data)
			require.NoError(t, err)
			var payload ActivityNew
			require.NoError(t, json.Unmarshal(data, &payload))
			assert.Equal(t, string(rune('0'+i)), payload.Activity.ID, "recipient %s frame %d out of order", id, i)
		}
	}
}

func TestRouter_SendReturnsTransportDeliveryError(t *testing.T) {
	router, conns := newTestRouter(t, 1, "a")
	conns["a"].Close()

	err := router.Send(conns["a"], Envelope{Event: EventAck})

	var deliveryErr *TransportDeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, "a", deliveryErr.ConnectionID)
	assert.ErrorIs(t, err, registry.ErrConnectionClosed)
}
