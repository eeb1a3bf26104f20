package workspace

import (
	domain "github.com/example/workspace-realtime/domain/workspace"
)

// DefaultActivityLogSize is the number of activity events retained per room.
const DefaultActivityLogSize = 50

// ActivityLog is a fixed-capacity ring of activity events.
// Appends overwrite the oldest entry once the ring is full.
// Not safe for concurrent use; the owning Room serializes access.
type ActivityLog struct {
	entries []domain.ActivityEvent
	next    int
	size    int
}

// NewActivityLog creates a log retaining at most capacity events.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityLogSize
	}
	return &ActivityLog{entries: make([]domain.ActivityEvent, capacity)}
}

// Append inserts ev as the newest entry.
func (l *ActivityLog) Append(ev domain.ActivityEvent) {
	l.entries[l.next] = ev
	l.next = (l.next + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (l *ActivityLog) Recent(limit int) []domain.ActivityEvent {
	if limit <= 0 || limit > l.size {
		limit = l.size
	}

	result := make([]domain.ActivityEvent, limit)
	idx := l.next
	for i := range limit {
		idx = (idx - 1 + len(l.entries)) % len(l.entries)
		result[i] = l.entries[idx]
	}
	return result
}

// Len returns the number of retained events.
func (l *ActivityLog) Len() int {
	return l.size
}

// Cap returns the maximum number of retained events.
func (l *ActivityLog) Cap() int {
	return len(l.entries)
}
