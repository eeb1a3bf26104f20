package workspace

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	domain "github.com/example/workspace-realtime/domain/workspace"
)

// Validation constants
const (
	MaxWorkspaceIDLength = 128
	MaxTaskIDLength      = 128
	MaxCurrentTaskLength = 200
	MaxMessageLength     = 5000
)

// Errors returned by coordinator operations.
var (
	ErrUnknownRoom         = errors.New("workspace is not active")
	ErrNotJoined           = errors.New("connection has not joined the workspace")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInvalidStatus       = errors.New("invalid presence status")
	ErrInvalidActivityType = errors.New("invalid activity type")
	ErrIdentityMismatch    = errors.New("payload user does not match connection identity")
)

// Error codes carried across the service container.
const (
	codeUnknownRoom         = "unknown_room"
	codeInvalidPayload      = "invalid_payload"
	codeInvalidActivityType = "invalid_activity_type"
)

// JoinRequest is the workspace:join payload.
type JoinRequest struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	UserAvatar  string `json:"userAvatar,omitempty"`
}

// LeaveRequest is the workspace:leave payload.
type LeaveRequest struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
}

// StateRequest is the workspace:getState payload.
type StateRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

// StatusRequest is the presence:status payload.
type StatusRequest struct {
	WorkspaceID string        `json:"workspaceId"`
	UserID      string        `json:"userId"`
	Status      domain.Status `json:"status"`
	CurrentTask string        `json:"currentTask,omitempty"`
}

// MessageRequest is the workspace:message payload.
type MessageRequest struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	UserAvatar  string `json:"userAvatar,omitempty"`
	Message     string `json:"message"`
}

// TaskUpdateRequest is the task:update payload relayed as task:updated.
type TaskUpdateRequest struct {
	WorkspaceID string         `json:"workspaceId"`
	TaskID      string         `json:"taskId"`
	Changes     map[string]any `json:"changes"`
	UserID      string         `json:"userId"`
	UserName    string         `json:"userName"`
	UserAvatar  string         `json:"userAvatar,omitempty"`
}

// ActivityRequest describes an activity injected by an external collaborator.
type ActivityRequest struct {
	Type       domain.ActivityType `json:"type"`
	UserID     string              `json:"userId"`
	UserName   string              `json:"userName"`
	UserAvatar string              `json:"userAvatar,omitempty"`
	Data       map[string]any      `json:"data,omitempty"`
}

// Service container request/response types.

// ListWorkspacesRequest is the list-workspaces request.
type ListWorkspacesRequest struct{}

// ListWorkspacesResponse is the list-workspaces response.
type ListWorkspacesResponse struct {
	Workspaces []domain.Summary `json:"workspaces"`
}

// GetStateRequest is the get-workspace-state request.
type GetStateRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// GetStateResponse is the get-workspace-state response.
type GetStateResponse struct {
	Found bool         `json:"found"`
	State domain.State `json:"state"`
}

// RecordActivityRequest is the record-activity request.
type RecordActivityRequest struct {
	WorkspaceID string          `json:"workspace_id"`
	Activity    ActivityRequest `json:"activity"`
}

// RecordActivityResponse is the record-activity response.
type RecordActivityResponse struct {
	Activity  *domain.ActivityEvent `json:"activity,omitempty"`
	ErrorCode string                `json:"error_code,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// ValidateWorkspaceID validates a workspace id.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: workspaceId is required", ErrInvalidPayload)
	}
	if len(id) > MaxWorkspaceIDLength || !utf8.ValidString(id) {
		return fmt.Errorf("%w: workspaceId is malformed", ErrInvalidPayload)
	}
	return nil
}

// ValidateMessage validates chat message content against maxLength bytes.
func ValidateMessage(content string, maxLength int) error {
	if content == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidPayload)
	}
	if len(content) > maxLength {
		return fmt.Errorf("%w: message exceeds maximum length", ErrInvalidPayload)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: message contains invalid characters", ErrInvalidPayload)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownRoom):
		return codeUnknownRoom
	case errors.Is(err, ErrInvalidActivityType):
		return codeInvalidActivityType
	default:
		return codeInvalidPayload
	}
}

func errorFromCode(code, message string) error {
	var base error
	switch code {
	case "":
		return nil
	case codeUnknownRoom:
		base = ErrUnknownRoom
	case codeInvalidActivityType:
		base = ErrInvalidActivityType
	default:
		base = ErrInvalidPayload
	}
	message = strings.TrimPrefix(message, base.Error())
	message = strings.TrimPrefix(message, ": ")
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}
