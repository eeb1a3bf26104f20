package registry

import (
	"sort"
	"sync"
	"time"
)

// Identity is the authenticated user behind a transport session.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"userName"`
	Avatar      string `json:"userAvatar,omitempty"`
}

// Connection is one live transport session bound to an Identity.
// Outbound frames are queued on a bounded channel drained by a single writer.
type Connection struct {
	ID          string
	Identity    Identity
	ConnectedAt time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConnection(id string, identity Identity, bufferSize int) *Connection {
	return &Connection{
		ID:          id,
		Identity:    identity,
		ConnectedAt: time.Now(),
		out:         make(chan []byte, bufferSize),
		done:        make(chan struct{}),
		rooms:       make(map[string]struct{}),
	}
}

// UserID returns the authenticated user id.
func (c *Connection) UserID() string {
	return c.Identity.UserID
}

// Send queues a frame without blocking.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.out <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Frames returns the outbound queue for the connection writer.
func (c *Connection) Frames() <-chan []byte {
	return c.out
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection closed. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Track records that the connection joined roomID.
func (c *Connection) Track(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

// Untrack records that the connection left roomID.
func (c *Connection) Untrack(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// InRoom reports whether the connection is currently joined to roomID.
func (c *Connection) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// Rooms returns the joined room ids in sorted order.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
