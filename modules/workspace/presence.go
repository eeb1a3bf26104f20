package workspace

import (
	"sort"
	"time"

	domain "github.com/example/workspace-realtime/domain/workspace"
)

type presenceRecord struct {
	entry domain.PresenceEntry
	conns map[string]struct{}
}

// PresenceTracker keeps one entry per user no matter how many connections
// that user holds into the room. Not safe for concurrent use.
type PresenceTracker struct {
	records map[string]*presenceRecord // userID -> record
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{records: make(map[string]*presenceRecord)}
}

// Add attaches connectionID to member's entry, creating an online entry when
// the user had none. It reports whether a new entry was created.
func (p *PresenceTracker) Add(connectionID string, member domain.Member, now time.Time) bool {
	if rec, ok := p.records[member.UserID]; ok {
		rec.conns[connectionID] = struct{}{}
		return false
	}

	p.records[member.UserID] = &presenceRecord{
		entry: domain.PresenceEntry{
			Member:   member,
			Status:   domain.StatusOnline,
			JoinedAt: now,
		},
		conns: map[string]struct{}{connectionID: {}},
	}
	return true
}

// Remove detaches connectionID from userID's entry and deletes the entry when
// it was the last connection. It returns the removed entry, if any.
func (p *PresenceTracker) Remove(connectionID, userID string) (domain.PresenceEntry, bool) {
	rec, ok := p.records[userID]
	if !ok {
		return domain.PresenceEntry{}, false
	}

	delete(rec.conns, connectionID)
	if len(rec.conns) > 0 {
		return domain.PresenceEntry{}, false
	}

	delete(p.records, userID)
	return rec.entry, true
}

// SetStatus updates an existing entry and reports whether anything changed.
// Users without an entry are ignored.
func (p *PresenceTracker) SetStatus(userID string, status domain.Status, currentTask string) bool {
	rec, ok := p.records[userID]
	if !ok {
		return false
	}
	if rec.entry.Status == status && rec.entry.CurrentTask == currentTask {
		return false
	}
	rec.entry.Status = status
	rec.entry.CurrentTask = currentTask
	return true
}

// Get returns the entry for userID.
func (p *PresenceTracker) Get(userID string) (domain.PresenceEntry, bool) {
	rec, ok := p.records[userID]
	if !ok {
		return domain.PresenceEntry{}, false
	}
	return rec.entry, true
}

// Snapshot returns every entry ordered by join time, then user id.
func (p *PresenceTracker) Snapshot() []domain.PresenceEntry {
	result := make([]domain.PresenceEntry, 0, len(p.records))
	for _, rec := range p.records {
		result = append(result, rec.entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].JoinedAt.Before(result[j].JoinedAt)
		}
		return result[i].UserID < result[j].UserID
	})
	return result
}

// Len returns the number of users present.
func (p *PresenceTracker) Len() int {
	return len(p.records)
}
