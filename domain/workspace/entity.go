package workspace

import "time"

// Status is the liveness status a member reports for a workspace.
type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusBusy   Status = "busy"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// ActivityType classifies an entry of the workspace activity log.
type ActivityType string

const (
	ActivityMemberJoined ActivityType = "member_joined"
	ActivityMemberLeft   ActivityType = "member_left"
	ActivityTaskUpdated  ActivityType = "task_updated"
	ActivityRepo         ActivityType = "repo_activity"
	ActivityMessage      ActivityType = "message"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityMemberJoined, ActivityMemberLeft, ActivityTaskUpdated, ActivityRepo, ActivityMessage:
		return true
	}
	return false
}

// Member identifies the user behind a presence entry or an activity.
type Member struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

// PresenceEntry is the live state of one user inside a workspace.
type PresenceEntry struct {
	Member
	Status      Status    `json:"status"`
	CurrentTask string    `json:"currentTask,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// ActivityEvent is an immutable record of something that happened in a workspace.
type ActivityEvent struct {
	ID   string       `json:"id"`
	Type ActivityType `json:"type"`
	Member
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// State is the point-in-time view returned to a joining or resyncing client.
type State struct {
	WorkspaceID string          `json:"workspaceId"`
	Presence    []PresenceEntry `json:"presence"`
	Activities  []ActivityEvent `json:"activities"`
}

// Summary describes an active workspace room.
type Summary struct {
	WorkspaceID string    `json:"workspaceId"`
	Users       int       `json:"users"`
	Connections int       `json:"connections"`
	Activities  int       `json:"activities"`
	OpenedAt    time.Time `json:"openedAt"`
}
