package workspace

import (
	"errors"
	"sync"
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
	"github.com/example/workspace-realtime/modules/broadcast"
	"github.com/example/workspace-realtime/modules/registry"
)

// errRoomClosed is returned by a room that was destroyed between lookup and lock.
var errRoomClosed = errors.New("room closed")

// Broadcaster fans an envelope out to room members.
type Broadcaster interface {
	ToRoom(roomID string, members []string, env broadcast.Envelope, exclude string) int
}

// Room is the live channel of one workspace. Every mutation and the
// broadcasts it triggers run under mu, which fixes the per-room order
// in which recipients observe events.
type Room struct {
	id         string
	generation uint64
	openedAt   time.Time
	c          *Coordinator

	mu       sync.Mutex
	closed   bool
	members  map[string]string // connectionID -> userID
	presence *PresenceTracker
	log      *ActivityLog
}

func newRoom(id string, generation uint64, c *Coordinator) *Room {
	return &Room{
		id:         id,
		generation: generation,
		openedAt:   c.now(),
		c:          c,
		members:    make(map[string]string),
		presence:   NewPresenceTracker(),
		log:        NewActivityLog(c.activityLogSize),
	}
}

// ID returns the workspace id.
func (r *Room) ID() string {
	return r.id
}

// join adds conn to the room. Re-joining from the same connection only
// returns the current state.
func (r *Room) join(conn *registry.Connection, member domain.Member) (domain.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.State{}, errRoomClosed
	}
	if _, ok := r.members[conn.ID]; ok {
		return r.stateLocked(), nil
	}

	r.members[conn.ID] = member.UserID
	conn.Track(r.id)

	if r.presence.Add(conn.ID, member, r.c.now()) {
		activity := r.appendLocked(domain.ActivityMemberJoined, member, nil)

		members := r.memberIDsLocked()
		r.c.router.ToRoom(r.id, members, broadcast.NewPresenceUpdate(r.id, r.presence.Snapshot()), "")
		r.c.router.ToRoom(r.id, members, broadcast.NewActivity(r.id, activity), "")
	}

	return r.stateLocked(), nil
}

// leave removes connectionID from the room. It reports whether the
// connection was a member and whether the room became empty; an empty room
// is unlinked from the coordinator before the lock is released.
func (r *Room) leave(connectionID string) (left bool, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.members[connectionID]
	if r.closed || !ok {
		return false, false
	}
	delete(r.members, connectionID)

	if entry, removed := r.presence.Remove(connectionID, userID); removed {
		activity := r.appendLocked(domain.ActivityMemberLeft, entry.Member, nil)

		members := r.memberIDsLocked()
		r.c.router.ToRoom(r.id, members, broadcast.NewPresenceUpdate(r.id, r.presence.Snapshot()), "")
		r.c.router.ToRoom(r.id, members, broadcast.NewActivity(r.id, activity), "")
	}

	if len(r.members) == 0 {
		r.closed = true
		r.c.unlink(r)
		return true, true
	}
	return true, false
}

// setStatus updates userID's entry. Unknown users are ignored so a status
// racing a leave never recreates presence.
func (r *Room) setStatus(origin, userID string, status domain.Status, currentTask string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.presence.SetStatus(userID, status, currentTask) {
		return false
	}
	r.c.router.ToRoom(r.id, r.memberIDsLocked(), broadcast.NewPresenceUpdate(r.id, r.presence.Snapshot()), origin)
	return true
}

// record appends an activity on behalf of a joined connection, or of an
// external collaborator when origin is empty, and broadcasts it to every member.
func (r *Room) record(origin string, activityType domain.ActivityType, actor domain.Member, data map[string]any) (domain.ActivityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ActivityEvent{}, ErrUnknownRoom
	}
	if origin != "" {
		if _, ok := r.members[origin]; !ok {
			return domain.ActivityEvent{}, ErrNotJoined
		}
	}

	activity := r.appendLocked(activityType, actor, data)
	r.c.router.ToRoom(r.id, r.memberIDsLocked(), broadcast.NewActivity(r.id, activity), "")
	return activity, nil
}

// relayTask forwards a task change to every member except origin, then
// records it in the activity log.
func (r *Room) relayTask(origin string, req TaskUpdateRequest, actor domain.Member) (domain.ActivityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ActivityEvent{}, ErrUnknownRoom
	}
	if _, ok := r.members[origin]; !ok {
		return domain.ActivityEvent{}, ErrNotJoined
	}

	members := r.memberIDsLocked()
	r.c.router.ToRoom(r.id, members, broadcast.Envelope{
		Event: broadcast.EventTaskUpdated,
		Data: broadcast.TaskUpdated{
			WorkspaceID: r.id,
			TaskID:      req.TaskID,
			Changes:     req.Changes,
			Member:      actor,
		},
	}, origin)

	activity := r.appendLocked(domain.ActivityTaskUpdated, actor, map[string]any{
		"taskId":  req.TaskID,
		"changes": req.Changes,
	})
	r.c.router.ToRoom(r.id, members, broadcast.NewActivity(r.id, activity), "")
	return activity, nil
}

// snapshot returns the current presence and activity log.
func (r *Room) snapshot() domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// summary describes the room for introspection.
func (r *Room) summary() domain.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Summary{
		WorkspaceID: r.id,
		Users:       r.presence.Len(),
		Connections: len(r.members),
		Activities:  r.log.Len(),
		OpenedAt:    r.openedAt,
	}
}

func (r *Room) appendLocked(activityType domain.ActivityType, actor domain.Member, data map[string]any) domain.ActivityEvent {
	activity := domain.ActivityEvent{
		ID:        r.c.newID(),
		Type:      activityType,
		Member:    actor,
		Data:      data,
		Timestamp: r.c.now(),
	}
	r.log.Append(activity)
	r.c.sink.ActivityRecorded(r.id, activity)
	return activity
}

func (r *Room) stateLocked() domain.State {
	return domain.State{
		WorkspaceID: r.id,
		Presence:    r.presence.Snapshot(),
		Activities:  r.log.Recent(0),
	}
}

func (r *Room) memberIDsLocked() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}
