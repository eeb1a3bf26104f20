package workspace

import (
	"context"
	"errors"
	"testing"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T) (*Module, *registry.Registry) {
	t.Helper()
	reg := registry.New(64)
	m := NewModule(reg, broadcast.NewRouter(reg, &mockLogger{}), &mockLogger{})
	return m, reg
}

func TestModule_Services(t *testing.T) {
	m, reg := newTestModule(t)
	ctx := context.Background()

	list, err := m.listWorkspaces(ctx, ListWorkspacesRequest{}, nil)
	require.NoError(t, err)
	assert.Empty(t, list.Workspaces)

	got, err := m.getState(ctx, GetStateRequest{WorkspaceID: "ws1"}, nil)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.NotNil(t, got.State.Presence)

	conn, err := reg.Register("c1", registry.Identity{UserID: "A", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = m.Coordinator().HandleJoin(conn, JoinRequest{WorkspaceID: "ws1"})
	require.NoError(t, err)

	list, err = m.listWorkspaces(ctx, ListWorkspacesRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, list.Workspaces, 1)
	assert.Equal(t, "ws1", list.Workspaces[0].WorkspaceID)
	assert.Equal(t, 1, list.Workspaces[0].Users)

	got, err = m.getState(ctx, GetStateRequest{WorkspaceID: "ws1"}, nil)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, []string{"A"}, userIDs(got.State.Presence))

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.Details["active_workspaces"])
}

func TestModule_RecordActivityService(t *testing.T) {
	m, reg := newTestModule(t)
	ctx := context.Background()

	conn, err := reg.Register("c1", registry.Identity{UserID: "A"})
	require.NoError(t, err)
	_, err = m.Coordinator().HandleJoin(conn, JoinRequest{WorkspaceID: "ws1"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		req         RecordActivityRequest
		wantCode    string
		wantErr     error
		wantPresent bool
	}{
		{
			name: "recorded",
			req: RecordActivityRequest{WorkspaceID: "ws1", Activity: ActivityRequest{
				Type: domain.ActivityRepo, UserID: "ci", Data: map[string]any{"commit": "abc"},
			}},
			wantPresent: true,
		},
		{
			name:     "inactive workspace",
			req:      RecordActivityRequest{WorkspaceID: "ws2", Activity: ActivityRequest{Type: domain.ActivityRepo, UserID: "ci"}},
			wantCode: codeUnknownRoom,
			wantErr:  ErrUnknownRoom,
		},
		{
			name:     "internal activity type",
			req:      RecordActivityRequest{WorkspaceID: "ws1", Activity: ActivityRequest{Type: domain.ActivityMemberJoined, UserID: "ci"}},
			wantCode: codeInvalidActivityType,
			wantErr:  ErrInvalidActivityType,
		},
		{
			name:     "missing user",
			req:      RecordActivityRequest{WorkspaceID: "ws1", Activity: ActivityRequest{Type: domain.ActivityRepo}},
			wantCode: codeInvalidPayload,
			wantErr:  ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := m.recordActivity(ctx, tt.req, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.ErrorCode)
			if tt.wantPresent {
				require.NotNil(t, resp.Activity)
				assert.Equal(t, domain.ActivityRepo, resp.Activity.Type)
				return
			}
			assert.Nil(t, resp.Activity)
			assert.True(t, errors.Is(errorFromCode(resp.ErrorCode, resp.Message), tt.wantErr))
		})
	}
}

func TestModule_NilEventBusSinkIsNoop(t *testing.T) {
	m, reg := newTestModule(t)
	sink := busSink{m: m}

	assert.NotPanics(t, func() {
		sink.RoomOpened("ws1", 1)
		sink.ActivityRecorded("ws1", domain.ActivityEvent{ID: "a1", Type: domain.ActivityMessage})
		sink.RoomClosed("ws1", 1)
	})

	// The coordinator reports through the same sink on every join and leave.
	conn, err := reg.Register("c1", registry.Identity{UserID: "A"})
	require.NoError(t, err)
	_, err = m.Coordinator().HandleJoin(conn, JoinRequest{WorkspaceID: "ws1"})
	require.NoError(t, err)
	require.NoError(t, m.Coordinator().HandleLeave(conn, LeaveRequest{WorkspaceID: "ws1"}))
	assert.Zero(t, m.Coordinator().RoomCount())
}

func TestModule_EmitEvents(t *testing.T) {
	m, _ := newTestModule(t)
	assert.Equal(t, "workspace", m.Name())
	assert.Len(t, m.EmitEvents(), 3)
}
