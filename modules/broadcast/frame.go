package broadcast

import (
	domain "github.com/example/workspace-realtime/domain/workspace"
)

// Outbound event names.
const (
	EventPresenceUpdate  = "presence:update"
	EventActivityNew     = "activity:new"
	EventTaskUpdated     = "task:updated"
	EventNotificationNew = "notification:new"
	EventConnected       = "connected"
	EventAck             = "ack"
	EventError           = "error"
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Event string     `json:"event"`
	AckID string     `json:"ackId,omitempty"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a rejected request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresenceUpdate is the payload of presence:update.
type PresenceUpdate struct {
	WorkspaceID string                 `json:"workspaceId"`
	Members     []domain.PresenceEntry `json:"members"`
}

// ActivityNew is the payload of activity:new.
type ActivityNew struct {
	WorkspaceID string               `json:"workspaceId"`
	Activity    domain.ActivityEvent `json:"activity"`
}

// TaskUpdated is the payload of task:updated.
type TaskUpdated struct {
	WorkspaceID string         `json:"workspaceId"`
	TaskID      string         `json:"taskId"`
	Changes     map[string]any `json:"changes"`
	domain.Member
}

// Connected is sent once after the transport handshake.
type Connected struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

// NewPresenceUpdate builds a presence:update envelope.
func NewPresenceUpdate(workspaceID string, members []domain.PresenceEntry) Envelope {
	return Envelope{
		Event: EventPresenceUpdate,
		Data:  PresenceUpdate{WorkspaceID: workspaceID, Members: members},
	}
}

// NewActivity builds an activity:new envelope.
func NewActivity(workspaceID string, activity domain.ActivityEvent) Envelope {
	return Envelope{
		Event: EventActivityNew,
		Data:  ActivityNew{WorkspaceID: workspaceID, Activity: activity},
	}
}
