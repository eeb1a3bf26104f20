// Package workspace tracks presence and recent activity per workspace and
// translates client events into room operations.
package workspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// Sink observes room lifecycle and appended activities. Calls are made
// while the owning lock is held, so a sink sees events in room order and
// must not call back into the coordinator. Generation identifies one
// open/close cycle of a workspace.
type Sink interface {
	ActivityRecorded(workspaceID string, activity domain.ActivityEvent)
	RoomOpened(workspaceID string, generation uint64)
	RoomClosed(workspaceID string, generation uint64)
}

type noopSink struct{}

func (noopSink) ActivityRecorded(string, domain.ActivityEvent) {}
func (noopSink) RoomOpened(string, uint64)                     {}
func (noopSink) RoomClosed(string, uint64)                     {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithActivityLogSize sets the per-room activity log capacity.
func WithActivityLogSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.activityLogSize = size
		}
	}
}

// WithMaxMessageLength sets the maximum chat message length in bytes.
func WithMaxMessageLength(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxMessageLength = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithIDGenerator overrides activity id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

// WithSink registers an observer for room lifecycle and activities.
func WithSink(sink Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// Coordinator owns every active Room. Its own lock only guards the room
// map and is never held while a room lock is acquired.
type Coordinator struct {
	registry *registry.Registry
	router   Broadcaster
	logger   types.Logger
	sink     Sink

	activityLogSize  int
	maxMessageLength int
	now              func() time.Time
	newID            func() string

	mu         sync.Mutex
	rooms      map[string]*Room
	generation uint64
}

// NewCoordinator creates a coordinator delivering through router.
func NewCoordinator(reg *registry.Registry, router Broadcaster, logger types.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:         reg,
		router:           router,
		logger:           logger,
		sink:             noopSink{},
		activityLogSize:  DefaultActivityLogSize,
		maxMessageLength: MaxMessageLength,
		now:              time.Now,
		newID:            newActivityID,
		rooms:            make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newActivityID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// HandleJoin adds conn to the workspace, creating the room on first join,
// and returns the state the joining client renders.
func (c *Coordinator) HandleJoin(conn *registry.Connection, req JoinRequest) (domain.State, error) {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return domain.State{}, err
	}
	member, err := identify(conn, req.UserID, req.UserName, req.UserAvatar)
	if err != nil {
		return domain.State{}, err
	}

	for {
		room := c.acquire(req.WorkspaceID)
		state, err := room.join(conn, member)
		if errors.Is(err, errRoomClosed) {
			continue
		}
		if err != nil {
			return domain.State{}, err
		}

		c.logger.Debug("Joined workspace", "workspaceID", req.WorkspaceID, "connectionID", conn.ID, "userID", member.UserID)
		return state, nil
	}
}

// HandleLeave removes conn from the workspace. Leaving a workspace that is
// not active, or was never joined, is a no-op.
func (c *Coordinator) HandleLeave(conn *registry.Connection, req LeaveRequest) error {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return err
	}
	if _, err := identify(conn, req.UserID, "", ""); err != nil {
		return err
	}

	c.leave(conn, req.WorkspaceID)
	return nil
}

// HandleStatus updates the caller's presence status. Users without presence
// in the workspace are ignored.
func (c *Coordinator) HandleStatus(conn *registry.Connection, req StatusRequest) error {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return err
	}
	member, err := identify(conn, req.UserID, "", "")
	if err != nil {
		return err
	}
	if !req.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if len(req.CurrentTask) > MaxCurrentTaskLength {
		return fmt.Errorf("%w: currentTask exceeds maximum length", ErrInvalidPayload)
	}

	room := c.lookup(req.WorkspaceID)
	if room == nil {
		return nil
	}
	if room.setStatus(conn.ID, member.UserID, req.Status, req.CurrentTask) {
		c.logger.Debug("Presence status changed", "workspaceID", req.WorkspaceID, "userID", member.UserID, "status", req.Status)
	}
	return nil
}

// HandleMessage appends a message activity and broadcasts it to every
// member, the sender's own connections included.
func (c *Coordinator) HandleMessage(conn *registry.Connection, req MessageRequest) (domain.ActivityEvent, error) {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return domain.ActivityEvent{}, err
	}
	member, err := identify(conn, req.UserID, req.UserName, req.UserAvatar)
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	if err := ValidateMessage(req.Message, c.maxMessageLength); err != nil {
		return domain.ActivityEvent{}, err
	}

	room := c.lookup(req.WorkspaceID)
	if room == nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", ErrUnknownRoom, req.WorkspaceID)
	}
	activity, err := room.record(conn.ID, domain.ActivityMessage, member, map[string]any{"message": req.Message})
	if err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", err, req.WorkspaceID)
	}

	return activity, nil
}

// HandleTaskUpdate relays a task change to the other members and records a
// task_updated activity.
func (c *Coordinator) HandleTaskUpdate(conn *registry.Connection, req TaskUpdateRequest) (domain.ActivityEvent, error) {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return domain.ActivityEvent{}, err
	}
	member, err := identify(conn, req.UserID, req.UserName, req.UserAvatar)
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	if req.TaskID == "" || len(req.TaskID) > MaxTaskIDLength {
		return domain.ActivityEvent{}, fmt.Errorf("%w: taskId is required", ErrInvalidPayload)
	}
	if req.Changes == nil {
		req.Changes = map[string]any{}
	}

	room := c.lookup(req.WorkspaceID)
	if room == nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", ErrUnknownRoom, req.WorkspaceID)
	}
	activity, err := room.relayTask(conn.ID, req, member)
	if err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", err, req.WorkspaceID)
	}

	return activity, nil
}

// HandleGetState returns the workspace state. An inactive workspace yields
// an empty state.
func (c *Coordinator) HandleGetState(conn *registry.Connection, req StateRequest) (domain.State, error) {
	if err := ValidateWorkspaceID(req.WorkspaceID); err != nil {
		return domain.State{}, err
	}
	if _, err := identify(conn, "", "", ""); err != nil {
		return domain.State{}, err
	}

	state, _ := c.Snapshot(req.WorkspaceID)
	return state, nil
}

// HandleDisconnect leaves every room the connection joined, then releases
// its registry binding. Unknown connection ids are ignored.
func (c *Coordinator) HandleDisconnect(connectionID string) {
	conn, ok := c.registry.Get(connectionID)
	if !ok {
		return
	}

	rooms := conn.Rooms()
	for _, id := range rooms {
		c.leave(conn, id)
	}
	c.registry.Unregister(connectionID)

	c.logger.Debug("Connection disconnected", "connectionID", connectionID, "userID", conn.UserID(), "rooms", len(rooms))
}

// RecordActivity appends an externally produced activity to an active
// workspace. Only repo_activity and task_updated may be injected.
func (c *Coordinator) RecordActivity(workspaceID string, req ActivityRequest) (domain.ActivityEvent, error) {
	if err := ValidateWorkspaceID(workspaceID); err != nil {
		return domain.ActivityEvent{}, err
	}
	if req.Type != domain.ActivityRepo && req.Type != domain.ActivityTaskUpdated {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %q", ErrInvalidActivityType, req.Type)
	}
	if req.UserID == "" {
		return domain.ActivityEvent{}, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}

	room := c.lookup(workspaceID)
	if room == nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", ErrUnknownRoom, workspaceID)
	}
	actor := domain.Member{UserID: req.UserID, UserName: req.UserName, UserAvatar: req.UserAvatar}
	activity, err := room.record("", req.Type, actor, req.Data)
	if err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %s", err, workspaceID)
	}

	return activity, nil
}

// Snapshot returns the state of workspaceID and whether the room is active.
func (c *Coordinator) Snapshot(workspaceID string) (domain.State, bool) {
	room := c.lookup(workspaceID)
	if room == nil {
		return domain.State{
			WorkspaceID: workspaceID,
			Presence:    []domain.PresenceEntry{},
			Activities:  []domain.ActivityEvent{},
		}, false
	}
	return room.snapshot(), true
}

// Rooms summarizes every active room ordered by workspace id.
func (c *Coordinator) Rooms() []domain.Summary {
	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	result := make([]domain.Summary, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, room.summary())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].WorkspaceID < result[j].WorkspaceID
	})
	return result
}

// RoomCount returns the number of active rooms.
func (c *Coordinator) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

func (c *Coordinator) leave(conn *registry.Connection, workspaceID string) {
	room := c.lookup(workspaceID)
	if room == nil {
		conn.Untrack(workspaceID)
		return
	}

	left, emptied := room.leave(conn.ID)
	conn.Untrack(workspaceID)
	if left && emptied {
		c.logger.Info("Workspace closed", "workspaceID", workspaceID, "generation", room.generation)
	}
}

// acquire returns the room for id, creating it when absent. RoomOpened is
// reported under c.mu so it cannot overtake the RoomClosed of the
// previous generation, which unlink reports under the same lock.
func (c *Coordinator) acquire(id string) *Room {
	c.mu.Lock()
	room, ok := c.rooms[id]
	if !ok {
		c.generation++
		room = newRoom(id, c.generation, c)
		c.rooms[id] = room
		c.sink.RoomOpened(id, room.generation)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Info("Workspace opened", "workspaceID", id, "generation", room.generation)
	}
	return room
}

func (c *Coordinator) lookup(id string) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[id]
}

// unlink removes a closed room. Called with the room lock held.
func (c *Coordinator) unlink(room *Room) {
	c.mu.Lock()
	if c.rooms[room.id] == room {
		delete(c.rooms, room.id)
		c.sink.RoomClosed(room.id, room.generation)
	}
	c.mu.Unlock()
}

// identify resolves the acting member from the connection identity.
// A payload userId naming someone else is rejected.
func identify(conn *registry.Connection, userID, userName, userAvatar string) (domain.Member, error) {
	if conn == nil || conn.UserID() == "" {
		return domain.Member{}, registry.ErrUnauthenticated
	}
	if userID != "" && userID != conn.UserID() {
		return domain.Member{}, fmt.Errorf("%w: %w", registry.ErrUnauthenticated, ErrIdentityMismatch)
	}

	member := domain.Member{
		UserID:     conn.UserID(),
		UserName:   conn.Identity.DisplayName,
		UserAvatar: conn.Identity.Avatar,
	}
	if member.UserName == "" {
		member.UserName = userName
	}
	if member.UserAvatar == "" {
		member.UserAvatar = userAvatar
	}
	return member, nil
}
