package server

import "log"

// Presence derives the public "active room -> usernames" view and pushes it
// to every connected client. Each Publish recomputes the full snapshot.
type Presence struct {
	rooms     *Directory
	names     NameLookup
	broadcast func(payload []byte)
}

// NewPresence creates a Presence over rooms, resolving member names through
// names and delivering snapshots with broadcast.
func NewPresence(rooms *Directory, names NameLookup, broadcast func(payload []byte)) *Presence {
	return &Presence{rooms: rooms, names: names, broadcast: broadcast}
}

// Snapshot returns the current active rooms and their members' names.
func (p *Presence) Snapshot() map[string][]string {
	return p.rooms.ActiveRooms(p.names)
}

// Publish sends the current snapshot to all clients as one active-rooms-list event.
func (p *Presence) Publish() {
	payload, err := encodeEvent(EventActiveRoomsList, p.Snapshot())
	if err != nil {
		log.Printf("Error encoding active rooms: %v", err)
		return
	}
	p.broadcast(payload)
}
