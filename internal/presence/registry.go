// Package presence tracks which users are currently joined to which
// document rooms.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Registry maps a document id to the set of user ids joined to its room.
// A room entry exists only while its set is non-empty. Every method returns
// member lists sorted by user id.
type Registry interface {
	// Join adds userID to docID and returns the resulting members.
	Join(ctx context.Context, docID, userID string) ([]string, error)
	// Leave removes userID from docID and returns the remaining members.
	Leave(ctx context.Context, docID, userID string) ([]string, error)
	// OnDisconnect removes userID from every room it belongs to and returns
	// the remaining members per affected room.
	OnDisconnect(ctx context.Context, userID string) (map[string][]string, error)
	// Members returns the current members of docID.
	Members(ctx context.Context, docID string) ([]string, error)
	// Evict drops the room entirely and returns who was in it.
	Evict(ctx context.Context, docID string) ([]string, error)
}

// MemoryRegistry is a process-local Registry. One mutex guards every room,
// which makes each mutation atomic with respect to any other.
type MemoryRegistry struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{rooms: make(map[string]map[string]struct{})}
}

func (r *MemoryRegistry) Join(ctx context.Context, docID, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[docID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[docID] = set
	}
	set[userID] = struct{}{}
	return sorted(set), nil
}

func (r *MemoryRegistry) Leave(ctx context.Context, docID, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(docID, userID), nil
}

func (r *MemoryRegistry) removeLocked(docID, userID string) []string {
	set, ok := r.rooms[docID]
	if !ok {
		return []string{}
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.rooms, docID)
		return []string{}
	}
	return sorted(set)
}

func (r *MemoryRegistry) OnDisconnect(ctx context.Context, userID string) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string)
	for docID, set := range r.rooms {
		if _, ok := set[userID]; ok {
			out[docID] = r.removeLocked(docID, userID)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) Members(ctx context.Context, docID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sorted(r.rooms[docID]), nil
}

func (r *MemoryRegistry) Evict(ctx context.Context, docID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := sorted(r.rooms[docID])
	delete(r.rooms, docID)
	return members, nil
}

// Has reports whether a room entry exists for docID.
func (r *MemoryRegistry) Has(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[docID]
	return ok
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
