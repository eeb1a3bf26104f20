package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/workspace-realtime/events"
	"github.com/example/workspace-realtime/modules/broadcast"
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

func setup(t *testing.T) (*Module, *registry.Registry) {
	t.Helper()
	reg := registry.New(8)
	return NewModule(broadcast.NewRouter(reg, &mockLogger{}), &mockLogger{}), reg
}

func register(t *testing.T, reg *registry.Registry, id, userID string) *registry.Connection {
	t.Helper()
	conn, err := reg.Register(id, registry.Identity{UserID: userID})
	require.NoError(t, err)
	return conn
}

func TestSubscribe(t *testing.T) {
	m, reg := setup(t)
	conn := register(t, reg, "c1", "alice")

	tests := []struct {
		name    string
		conn    *registry.Connection
		userID  string
		wantErr error
	}{
		{name: "own channel", conn: conn, userID: "alice"},
		{name: "implicit own channel", conn: conn, userID: ""},
		{name: "foreign channel", conn: conn, userID: "bob", wantErr: ErrForeignChannel},
		{name: "unauthenticated", conn: nil, userID: "alice", wantErr: registry.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Subscribe(tt.conn, tt.userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.Equal(t, []string{"c1"}, m.Subscribers("alice"))
	assert.Empty(t, m.Subscribers("bob"))
}

func TestDeliverReachesEveryTab(t *testing.T) {
	m, reg := setup(t)
	tab1 := register(t, reg, "tab-1", "alice")
	tab2 := register(t, reg, "tab-2", "alice")
	other := register(t, reg, "other", "bob")
	require.NoError(t, m.Subscribe(tab1, "alice"))
	require.NoError(t, m.Subscribe(tab2, "alice"))
	require.NoError(t, m.Subscribe(other, "bob"))

	sent := m.Deliver(Notification{ID: "n1", UserID: "alice", Title: "Assigned to T-1"})

	assert.Equal(t, 2, sent)
	for _, conn := range []*registry.Connection{tab1, tab2} {
		select {
		case raw := <-conn.Frames():
			var env struct {
				Event string       `json:"event"`
				Data  Notification `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &env))
			assert.Equal(t, broadcast.EventNotificationNew, env.Event)
			assert.Equal(t, "Assigned to T-1", env.Data.Title)
		default:
			t.Fatalf("expected notification on %s", conn.ID)
		}
	}
	assert.Len(t, other.Frames(), 0)
}

func TestUnsubscribe(t *testing.T) {
	m, reg := setup(t)
	conn := register(t, reg, "c1", "alice")
	require.NoError(t, m.Subscribe(conn, "alice"))

	assert.True(t, m.Unsubscribe("c1"))
	assert.False(t, m.Unsubscribe("c1"))
	assert.Zero(t, m.Deliver(Notification{UserID: "alice"}))

	health := m.Health(context.Background())
	assert.Equal(t, 0, health.Details["users"])
}

func TestHandleNotificationRequested(t *testing.T) {
	m, reg := setup(t)
	conn := register(t, reg, "c1", "alice")
	require.NoError(t, m.Subscribe(conn, ""))

	err := m.handleNotificationRequested(context.Background(), events.NotificationRequestedEvent{
		NotificationID: "n1",
		UserID:         "alice",
		Title:          "Build failed",
		Timestamp:      time.Now(),
	}, nil)

	require.NoError(t, err)
	assert.Len(t, conn.Frames(), 1)
	assert.Equal(t, int64(1), m.delivered.Load())
}
