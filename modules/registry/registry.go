// Package registry tracks which players are live in which room.
package registry

import (
	"sort"
	"sync"

	"github.com/example/modular-world/domain/world"
)

// LiveRoom is a point-in-time view of a live room.
type LiveRoom struct {
	Key     string
	Players []world.Presence
}

// Stats are the read-only counters reported by health endpoints.
type Stats struct {
	Players int `json:"players"`
	Rooms   int `json:"rooms"`
}

// Registry is the in-memory map of room key to live players.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*world.Presence // roomKey -> connID -> presence
	byConn map[string]string                     // connID -> roomKey
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]*world.Presence),
		byConn: make(map[string]string),
	}
}

// GetOrCreateLive returns the live room for key, creating an empty one.
func (r *Registry) GetOrCreateLive(key string) LiveRoom {
	r.mu.Lock()
	defer r.mu.Unlock()

	players, ok := r.rooms[key]
	if !ok {
		players = make(map[string]*world.Presence)
		r.rooms[key] = players
	}
	return LiveRoom{Key: key, Players: snapshot(players, "")}
}

// AddPlayer registers the presence in the room. A connection is live in at
// most one room, so any presence it still has elsewhere is evicted.
func (r *Registry) AddPlayer(key string, p world.Presence) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[p.ID]; ok && prev != key {
		r.removeLocked(prev, p.ID)
	}

	players, ok := r.rooms[key]
	if !ok {
		players = make(map[string]*world.Presence)
		r.rooms[key] = players
	}
	clone := p.Clone()
	players[p.ID] = &clone
	r.byConn[p.ID] = key
}

// RemovePlayer removes the connection's presence from the room and reports
// whether one was present.
func (r *Registry) RemovePlayer(key, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(key, connID)
}

func (r *Registry) removeLocked(key, connID string) bool {
	players, ok := r.rooms[key]
	if !ok {
		return false
	}
	if _, ok := players[connID]; !ok {
		return false
	}
	delete(players, connID)
	if r.byConn[connID] == key {
		delete(r.byConn, connID)
	}
	if len(players) == 0 {
		delete(r.rooms, key)
	}
	return true
}

// UpdatePlayer applies fn to the live presence and reports whether it existed.
func (r *Registry) UpdatePlayer(key, connID string, fn func(*world.Presence)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	players, ok := r.rooms[key]
	if !ok {
		return false
	}
	p, ok := players[connID]
	if !ok {
		return false
	}
	fn(p)
	// The presence id and room are owned by the registry.
	p.ID = connID
	return true
}

// Player returns a copy of the connection's presence in the room.
func (r *Registry) Player(key, connID string) (world.Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rooms[key][connID]
	if !ok {
		return world.Presence{}, false
	}
	return p.Clone(), true
}

// ListPlayers returns copies of every presence in the room except the
// excluded connection, ordered by connection id.
func (r *Registry) ListPlayers(key, excluding string) []world.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.rooms[key], excluding)
}

// ConnIDs returns the connection ids live in the room except the excluded one.
func (r *Registry) ConnIDs(key, excluding string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms[key]))
	for id := range r.rooms[key] {
		if id != excluding {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RoomOf returns the room key the connection is live in.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byConn[connID]
	return key, ok
}

// Stats returns the number of live players and rooms.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Players: len(r.byConn), Rooms: len(r.rooms)}
}

func snapshot(players map[string]*world.Presence, excluding string) []world.Presence {
	result := make([]world.Presence, 0, len(players))
	for id, p := range players {
		if id == excluding {
			continue
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
