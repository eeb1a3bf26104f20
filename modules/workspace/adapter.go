package workspace

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// WorkspacePort defines the workspace operations available to other modules.
type WorkspacePort interface {
	ListWorkspaces(ctx context.Context) ([]domain.Summary, error)
	GetState(ctx context.Context, workspaceID string) (domain.State, error)
	RecordActivity(ctx context.Context, workspaceID string, activity ActivityRequest) (domain.ActivityEvent, error)
}

// workspaceAdapter implements WorkspacePort using the service container.
type workspaceAdapter struct {
	container mono.ServiceContainer
}

// NewWorkspaceAdapter creates a new adapter for workspace services.
func NewWorkspaceAdapter(container mono.ServiceContainer) WorkspacePort {
	if container == nil {
		panic("workspace adapter requires non-nil ServiceContainer")
	}
	return &workspaceAdapter{container: container}
}

// ListWorkspaces returns summaries of every active workspace.
func (a *workspaceAdapter) ListWorkspaces(ctx context.Context) ([]domain.Summary, error) {
	req := ListWorkspacesRequest{}
	var resp ListWorkspacesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListWorkspaces,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceListWorkspaces, err)
	}
	return resp.Workspaces, nil
}

// GetState returns the state of an active workspace, or ErrUnknownRoom.
func (a *workspaceAdapter) GetState(ctx context.Context, workspaceID string) (domain.State, error) {
	req := GetStateRequest{WorkspaceID: workspaceID}
	var resp GetStateResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetState,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.State{}, fmt.Errorf("%s service call failed: %w", ServiceGetState, err)
	}
	if !resp.Found {
		return domain.State{}, fmt.Errorf("%w: %s", ErrUnknownRoom, workspaceID)
	}
	return resp.State, nil
}

// RecordActivity injects an activity into an active workspace.
func (a *workspaceAdapter) RecordActivity(ctx context.Context, workspaceID string, activity ActivityRequest) (domain.ActivityEvent, error) {
	req := RecordActivityRequest{WorkspaceID: workspaceID, Activity: activity}
	var resp RecordActivityResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecordActivity,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("%s service call failed: %w", ServiceRecordActivity, err)
	}
	if err := errorFromCode(resp.ErrorCode, resp.Message); err != nil {
		return domain.ActivityEvent{}, err
	}
	if resp.Activity == nil {
		return domain.ActivityEvent{}, fmt.Errorf("%s returned no activity", ServiceRecordActivity)
	}
	return *resp.Activity, nil
}
