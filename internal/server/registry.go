package server

// ConnID identifies one live connection.
type ConnID string

type binding struct {
	name  string
	bound bool
	room  string
}

// Registry maps each live connection to its display name and active room.
// It is owned by the hub goroutine and is not safe for concurrent use.
type Registry struct {
	entries map[ConnID]*binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ConnID]*binding)}
}

func (r *Registry) entry(id ConnID) *binding {
	b, ok := r.entries[id]
	if !ok {
		b = &binding{}
		r.entries[id] = b
	}
	return b
}

// Bind associates name with id, replacing any earlier name.
func (r *Registry) Bind(id ConnID, name string) {
	b := r.entry(id)
	b.name = name
	b.bound = true
}

// Lookup returns the name bound to id.
func (r *Registry) Lookup(id ConnID) (string, bool) {
	b, ok := r.entries[id]
	if !ok || !b.bound {
		return "", false
	}
	return b.name, true
}

// SetRoom records room as the active room of id. An empty room clears it.
func (r *Registry) SetRoom(id ConnID, room string) {
	if room == "" {
		if b, ok := r.entries[id]; ok {
			b.room = ""
		}
		return
	}
	r.entry(id).room = room
}

// ActiveRoom returns the room id is currently joined to.
func (r *Registry) ActiveRoom(id ConnID) (string, bool) {
	b, ok := r.entries[id]
	if !ok || b.room == "" {
		return "", false
	}
	return b.room, true
}

// Unbind forgets id entirely.
func (r *Registry) Unbind(id ConnID) {
	delete(r.entries, id)
}
