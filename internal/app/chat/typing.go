/*
Package chat contains the realtime core.

This file defines the typing aggregator: a short-lived per-room set of
display names currently typing, with TTL-based expiry. Entries are pruned
lazily on read and by the hub's periodic sweep, which covers clients that
vanished without an explicit typing=false. Owned by the hub goroutine.
*/
package chat

import (
	"sort"
	"time"
)

const (
	// TypingTTL is how long a typing entry survives without a refresh.
	TypingTTL = 6 * time.Second

	// TypingSweepInterval is how often the hub prunes expired entries.
	TypingSweepInterval = 2 * time.Second
)

// TypingTracker holds per-room typing state: name to stamped-at time.
type TypingTracker struct {
	ttl   time.Duration
	rooms map[string]map[string]time.Time
}

// NewTypingTracker returns a tracker with the given entry TTL.
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	return &TypingTracker{
		ttl:   ttl,
		rooms: make(map[string]map[string]time.Time),
	}
}

// Set stamps or removes a typing entry and reports whether the set of names
// for the room changed. A refresh of an existing entry restamps its time but
// is not a membership change.
func (t *TypingTracker) Set(roomID, name string, typing bool, now time.Time) bool {
	entries := t.rooms[roomID]

	if typing {
		if entries == nil {
			entries = make(map[string]time.Time)
			t.rooms[roomID] = entries
		}
		_, existed := entries[name]
		entries[name] = now
		return !existed
	}

	if entries == nil {
		return false
	}
	if _, existed := entries[name]; !existed {
		return false
	}
	delete(entries, name)
	return true
}

// Remove drops a name from a room's typing set, reporting whether it was
// present. Used when the last connection carrying that name leaves the room.
func (t *TypingTracker) Remove(roomID, name string) bool {
	entries := t.rooms[roomID]
	if entries == nil {
		return false
	}
	if _, existed := entries[name]; !existed {
		return false
	}
	delete(entries, name)
	return true
}

// Names returns the sorted names typing in a room, pruning expired entries
// on the way.
func (t *TypingTracker) Names(roomID string, now time.Time) []string {
	entries := t.rooms[roomID]
	if len(entries) == 0 {
		return nil
	}

	names := make([]string, 0, len(entries))
	for name, stamped := range entries {
		if now.Sub(stamped) > t.ttl {
			delete(entries, name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Sweep prunes every room and returns the ids of rooms whose typing set
// changed, so the hub can re-broadcast their aggregates.
func (t *TypingTracker) Sweep(now time.Time) []string {
	var changed []string

	for roomID, entries := range t.rooms {
		pruned := false
		for name, stamped := range entries {
			if now.Sub(stamped) > t.ttl {
				delete(entries, name)
				pruned = true
			}
		}
		if pruned {
			changed = append(changed, roomID)
		}
	}

	return changed
}
