/*
Package chat contains the realtime core.

This file defines the presence table: which display name each connection
carries and which room it is visible in. Entries are derived exclusively from
join/leave/close events, so presence can never drift from actual membership.
The table is owned by the hub goroutine and is not safe for concurrent use.
*/
package chat

import "sort"

// PresenceEntry is the derived view of one connection.
type PresenceEntry struct {
	// Name is the display name. Names are not required to be unique.
	Name string

	// Room is the room id the connection is visible in, "" when roomless.
	Room string
}

// PresenceTable maps connection ids to their presence entry. Each connection
// has exactly one entry from admission to close.
type PresenceTable struct {
	entries map[string]PresenceEntry
}

// NewPresenceTable returns an empty table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{entries: make(map[string]PresenceEntry)}
}

// Track admits a connection with its resolved display name and no room.
func (p *PresenceTable) Track(connID, name string) {
	p.entries[connID] = PresenceEntry{Name: name}
}

// Rename updates the display name of a tracked connection.
func (p *PresenceTable) Rename(connID, name string) {
	if entry, ok := p.entries[connID]; ok {
		entry.Name = name
		p.entries[connID] = entry
	}
}

// SetRoom moves a tracked connection into a room ("" for none).
func (p *PresenceTable) SetRoom(connID, roomID string) {
	if entry, ok := p.entries[connID]; ok {
		entry.Room = roomID
		p.entries[connID] = entry
	}
}

// Remove drops the entry for a closed connection. Safe on unknown ids.
func (p *PresenceTable) Remove(connID string) {
	delete(p.entries, connID)
}

// Entry returns the entry for a connection id.
func (p *PresenceTable) Entry(connID string) (PresenceEntry, bool) {
	entry, ok := p.entries[connID]
	return entry, ok
}

// NamesInRoom returns the sorted display names visible in a room. Duplicate
// names collapse; visibility is by name, not by connection.
func (p *PresenceTable) NamesInRoom(roomID string) []string {
	seen := make(map[string]struct{})
	for _, entry := range p.entries {
		if entry.Room == roomID {
			seen[entry.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// RoomHasName reports whether any connection in the room carries the name.
func (p *PresenceTable) RoomHasName(roomID, name string) bool {
	for _, entry := range p.entries {
		if entry.Room == roomID && entry.Name == name {
			return true
		}
	}
	return false
}

// Len returns the number of tracked connections.
func (p *PresenceTable) Len() int {
	return len(p.entries)
}
