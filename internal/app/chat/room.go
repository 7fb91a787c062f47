/*
Package chat contains the realtime core.

This file defines the Room struct. A room partitions broadcast visibility; it
holds a weak member set of connection identifiers, never owning the
connections themselves. Rooms are created on first join or by explicit
request and are never implicitly destroyed, so late joiners can re-populate
history from the external message store. Owned by the hub goroutine.
*/
package chat

import "time"

// Room is a single named broadcast scope.
type Room struct {
	// ID is the unique room identifier.
	ID string

	// Name is the human-readable room name.
	Name string

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time

	// members is the set of member connection ids. Membership is a weak
	// back-reference into the hub's connection map.
	members map[string]struct{}
}

// newRoom creates an empty room.
func newRoom(id, name string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		members:   make(map[string]struct{}),
	}
}

// addMember inserts a connection id into the member set.
func (r *Room) addMember(connID string) {
	r.members[connID] = struct{}{}
}

// removeMember deletes a connection id from the member set. Safe on ids that
// are not members.
func (r *Room) removeMember(connID string) {
	delete(r.members, connID)
}

// hasMember reports whether the connection id is a member.
func (r *Room) hasMember(connID string) bool {
	_, ok := r.members[connID]
	return ok
}

// memberCount returns the current number of members.
func (r *Room) memberCount() int {
	return len(r.members)
}

// memberIDs returns a copied snapshot of the member set, so fan-out never
// iterates a map that a concurrent join/leave is mutating.
func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}
