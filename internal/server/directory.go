package server

import (
	"fmt"
	"sort"
	"strings"
)

// RetentionPolicy decides what happens to a room once its last member leaves.
type RetentionPolicy int

const (
	// RetainEmptyRooms keeps empty rooms in the directory indefinitely.
	RetainEmptyRooms RetentionPolicy = iota
	// PruneEmptyRooms deletes a room when its membership drops to zero.
	PruneEmptyRooms
)

func (p RetentionPolicy) String() string {
	if p == PruneEmptyRooms {
		return "prune"
	}
	return "retain"
}

// ParseRetentionPolicy parses "retain" or "prune". Empty means retain.
func ParseRetentionPolicy(s string) (RetentionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "retain":
		return RetainEmptyRooms, nil
	case "prune":
		return PruneEmptyRooms, nil
	default:
		return RetainEmptyRooms, fmt.Errorf("unknown room retention policy %q", s)
	}
}

// NameLookup resolves a connection to its display name.
type NameLookup interface {
	Lookup(id ConnID) (string, bool)
}

type room struct {
	members map[ConnID]uint64
}

// Directory maps normalized room names to their joined connections. Members
// are kept in join order. A connection's private delivery channel is never a
// room here; the hub addresses it directly. Not safe for concurrent use.
type Directory struct {
	rooms  map[string]*room
	seq    uint64
	policy RetentionPolicy
}

// NewDirectory creates an empty Directory.
func NewDirectory(policy RetentionPolicy) *Directory {
	return &Directory{
		rooms:  make(map[string]*room),
		policy: policy,
	}
}

// Ensure creates name with no members if it does not exist and reports
// whether it did.
func (d *Directory) Ensure(name string) bool {
	if _, ok := d.rooms[name]; ok {
		return false
	}
	d.rooms[name] = &room{members: make(map[ConnID]uint64)}
	return true
}

// Exists reports whether name is in the directory.
func (d *Directory) Exists(name string) bool {
	_, ok := d.rooms[name]
	return ok
}

// Add inserts id into name. Ensure must have been called for name.
func (d *Directory) Add(name string, id ConnID) {
	r, ok := d.rooms[name]
	if !ok {
		return
	}
	if _, member := r.members[id]; member {
		return
	}
	d.seq++
	r.members[id] = d.seq
}

// Remove deletes id from name and reports whether it was a member.
func (d *Directory) Remove(name string, id ConnID) bool {
	r, ok := d.rooms[name]
	if !ok {
		return false
	}
	if _, member := r.members[id]; !member {
		return false
	}
	delete(r.members, id)
	if len(r.members) == 0 && d.policy == PruneEmptyRooms {
		delete(d.rooms, name)
	}
	return true
}

// RemoveFromAll deletes id from every room and returns the rooms it left, sorted.
func (d *Directory) RemoveFromAll(id ConnID) []string {
	var left []string
	for name, r := range d.rooms {
		if _, member := r.members[id]; member {
			left = append(left, name)
		}
	}
	sort.Strings(left)
	for _, name := range left {
		d.Remove(name, id)
	}
	return left
}

// MembersOf returns the members of name in join order.
func (d *Directory) MembersOf(name string) []ConnID {
	r, ok := d.rooms[name]
	if !ok {
		return nil
	}
	members := make([]ConnID, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool {
		return r.members[members[i]] < r.members[members[j]]
	})
	return members
}

// ActiveRooms returns every room with at least one member, mapped to its
// members' names in join order. Members without a bound name are skipped.
func (d *Directory) ActiveRooms(names NameLookup) map[string][]string {
	active := make(map[string][]string)
	for name, r := range d.rooms {
		if len(r.members) == 0 {
			continue
		}
		list := make([]string, 0, len(r.members))
		for _, id := range d.MembersOf(name) {
			if n, ok := names.Lookup(id); ok {
				list = append(list, n)
			}
		}
		active[name] = list
	}
	return active
}

// Len returns the number of rooms in the directory.
func (d *Directory) Len() int {
	return len(d.rooms)
}
