package chat

import (
	"sync"

	"github.com/zhouzirui/dialog-lab/bot/internal/model/chat"
)

const registryShards = 32

// Registry maps a user to their most recent session. Users are spread over
// independently locked shards; every operation on one user is atomic.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu       sync.Mutex
	sessions map[int64]*chat.Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].sessions = make(map[int64]*chat.Session)
	}
	return r
}

func (r *Registry) shard(userID int64) *registryShard {
	return &r.shards[uint64(userID)%registryShards]
}

// Replace installs the session returned by build, which receives the current
// entry (nil when the user has none).
func (r *Registry) Replace(userID int64, build func(prev *chat.Session) *chat.Session) chat.Snapshot {
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	next := build(sh.sessions[userID])
	sh.sessions[userID] = next
	return next.Snapshot()
}

// Update runs fn on the user's session while holding its shard lock.
// It returns ErrNoActiveSession when the user has no session.
func (r *Registry) Update(userID int64, fn func(s *chat.Session) error) error {
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[userID]
	if !ok {
		return ErrNoActiveSession
	}
	return fn(session)
}

// Snapshot returns a copy of the user's current session.
func (r *Registry) Snapshot(userID int64) (chat.Snapshot, bool) {
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[userID]
	if !ok {
		return chat.Snapshot{}, false
	}
	return session.Snapshot(), true
}

// Len reports how many users have a session.
func (r *Registry) Len() int {
	total := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		total += len(sh.sessions)
		sh.mu.Unlock()
	}
	return total
}

// CountActive reports how many registered sessions are still active.
func (r *Registry) CountActive() int {
	total := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for _, s := range sh.sessions {
			if s.Active {
				total++
			}
		}
		sh.mu.Unlock()
	}
	return total
}
