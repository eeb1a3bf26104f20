package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/events"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Service names registered by the workspace module.
const (
	ServiceListWorkspaces = "list-workspaces"
	ServiceGetState       = "get-workspace-state"
	ServiceRecordActivity = "record-activity"
)

// Module exposes the coordinator to the rest of the application.
type Module struct {
	coordinator *Coordinator
	eventBus    mono.EventBus
	logger      types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the workspace module delivering through router.
func NewModule(reg *registry.Registry, router Broadcaster, logger types.Logger, opts ...Option) *Module {
	m := &Module{logger: logger}
	opts = append(opts, WithSink(busSink{m: m}))
	m.coordinator = NewCoordinator(reg, router, logger, opts...)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "workspace"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ActivityRecordedV1.ToBase(),
		events.WorkspaceOpenedV1.ToBase(),
		events.WorkspaceClosedV1.ToBase(),
	}
}

// RegisterServices registers the request-reply services used by the REST layer.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListWorkspaces, json.Unmarshal, json.Marshal, m.listWorkspaces,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListWorkspaces, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetState, json.Unmarshal, json.Marshal, m.getState,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetState, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecordActivity, json.Unmarshal, json.Marshal, m.recordActivity,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecordActivity, err)
	}

	m.logger.Info("Registered workspace services",
		"services", []string{ServiceListWorkspaces, ServiceGetState, ServiceRecordActivity})
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	if m.eventBus == nil {
		m.logger.Warn("EventBus not set, workspace events will not be published")
	}
	m.logger.Info("Workspace module started",
		"activityLogSize", m.coordinator.activityLogSize,
		"maxMessageLength", m.coordinator.maxMessageLength)
	return nil
}

// Stop stops the module. Rooms are in-memory only and are dropped with the process.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Workspace module stopped", "activeWorkspaces", m.coordinator.RoomCount())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"active_workspaces": m.coordinator.RoomCount(),
		},
	}
}

// Coordinator returns the room coordinator used by the transport layer.
func (m *Module) Coordinator() *Coordinator {
	return m.coordinator
}

func (m *Module) listWorkspaces(_ context.Context, _ ListWorkspacesRequest, _ *mono.Msg) (ListWorkspacesResponse, error) {
	return ListWorkspacesResponse{Workspaces: m.coordinator.Rooms()}, nil
}

func (m *Module) getState(_ context.Context, req GetStateRequest, _ *mono.Msg) (GetStateResponse, error) {
	state, found := m.coordinator.Snapshot(req.WorkspaceID)
	return GetStateResponse{Found: found, State: state}, nil
}

func (m *Module) recordActivity(_ context.Context, req RecordActivityRequest, _ *mono.Msg) (RecordActivityResponse, error) {
	activity, err := m.coordinator.RecordActivity(req.WorkspaceID, req.Activity)
	if err != nil {
		return RecordActivityResponse{ErrorCode: errorCode(err), Message: err.Error()}, nil
	}
	return RecordActivityResponse{Activity: &activity}, nil
}

// busSink publishes coordinator notifications on the module's EventBus.
type busSink struct {
	m *Module
}

func (s busSink) ActivityRecorded(workspaceID string, activity domain.ActivityEvent) {
	if s.m.eventBus == nil {
		return
	}
	event := events.ActivityRecordedEvent{
		ActivityID:  activity.ID,
		WorkspaceID: workspaceID,
		Type:        string(activity.Type),
		UserID:      activity.UserID,
		UserName:    activity.UserName,
		Data:        activity.Data,
		Timestamp:   activity.Timestamp,
	}
	if err := events.ActivityRecordedV1.Publish(s.m.eventBus, event, nil); err != nil {
		s.m.logger.Warn("Failed to publish ActivityRecorded event", "workspaceID", workspaceID, "error", err)
	}
}

func (s busSink) RoomOpened(workspaceID string, generation uint64) {
	if s.m.eventBus == nil {
		return
	}
	event := events.WorkspaceOpenedEvent{WorkspaceID: workspaceID, Generation: generation, Timestamp: time.Now()}
	if err := events.WorkspaceOpenedV1.Publish(s.m.eventBus, event, nil); err != nil {
		s.m.logger.Warn("Failed to publish WorkspaceOpened event", "workspaceID", workspaceID, "error", err)
	}
}

func (s busSink) RoomClosed(workspaceID string, generation uint64) {
	if s.m.eventBus == nil {
		return
	}
	event := events.WorkspaceClosedEvent{WorkspaceID: workspaceID, Generation: generation, Timestamp: time.Now()}
	if err := events.WorkspaceClosedV1.Publish(s.m.eventBus, event, nil); err != nil {
		s.m.logger.Warn("Failed to publish WorkspaceClosed event", "workspaceID", workspaceID, "error", err)
	}
}
