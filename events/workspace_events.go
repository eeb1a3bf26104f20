package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityRecordedEvent is emitted for every activity appended to a workspace log.
type ActivityRecordedEvent struct {
	ActivityID  string         `json:"activity_id"`
	WorkspaceID string         `json:"workspace_id"`
	Type        string         `json:"type"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// WorkspaceOpenedEvent is emitted when the first connection joins a workspace.
type WorkspaceOpenedEvent struct {
	WorkspaceID string    `json:"workspace_id"`
	Generation  uint64    `json:"generation"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkspaceClosedEvent is emitted when the last connection leaves a workspace.
// Generation matches the WorkspaceOpenedEvent of the same room instance.
type WorkspaceClosedEvent struct {
	WorkspaceID string    `json:"workspace_id"`
	Generation  uint64    `json:"generation"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotificationRequestedEvent asks for a notification to be pushed to a user.
type NotificationRequestedEvent struct {
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body,omitempty"`
	Link           string         `json:"link,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Event definitions for the workspace domain.
var (
	ActivityRecordedV1 = helper.EventDefinition[ActivityRecordedEvent](
		"workspace",
		"ActivityRecorded",
		"v1",
	)

	WorkspaceOpenedV1 = helper.EventDefinition[WorkspaceOpenedEvent](
		"workspace",
		"WorkspaceOpened",
		"v1",
	)

	WorkspaceClosedV1 = helper.EventDefinition[WorkspaceClosedEvent](
		"workspace",
		"WorkspaceClosed",
		"v1",
	)

	NotificationRequestedV1 = helper.EventDefinition[NotificationRequestedEvent](
		"api",
		"NotificationRequested",
		"v1",
	)
)
