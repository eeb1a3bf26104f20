package api

import (
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
)

// WorkspaceListResponse is the API response for listing active workspaces.
type WorkspaceListResponse struct {
	Workspaces []domain.Summary `json:"workspaces"`
}

// RecordActivityRequest is the API request to inject an activity.
type RecordActivityRequest struct {
	Type       domain.ActivityType `json:"type"`
	UserID     string              `json:"userId"`
	UserName   string              `json:"userName"`
	UserAvatar string              `json:"userAvatar,omitempty"`
	Data       map[string]any      `json:"data,omitempty"`
}

// NotificationRequest is the API request to notify a user.
type NotificationRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body,omitempty"`
	Link  string         `json:"link,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// NotificationAcceptedResponse is returned once a notification is queued.
type NotificationAcceptedResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
