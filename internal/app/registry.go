package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

// Registry maps a user identity to its current connection, with the reverse
// index kept under the same lock so disconnects resolve in O(1).
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.ConnID
	users map[core.ConnID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]core.ConnID),
		users: make(map[core.ConnID]domain.UserID),
	}
}

// Register binds user to conn. A later registration for the same user wins;
// the superseded connection loses its reverse entry.
func (r *Registry) Register(user domain.UserID, conn core.ConnID) (prev core.ConnID, superseded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[user]; ok && old != conn {
		delete(r.users, old)
		prev, superseded = old, true
	}
	if oldUser, ok := r.users[conn]; ok && oldUser != user {
		if r.conns[oldUser] == conn {
			delete(r.conns, oldUser)
		}
	}
	r.conns[user] = conn
	r.users[conn] = user
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("conn", string(conn)).Bool("superseded", superseded).Msg("registered")
	return prev, superseded
}

func (r *Registry) UserOf(conn core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[conn]
	return u, ok
}

// Unregister removes whatever identity conn holds.
func (r *Registry) Unregister(conn core.ConnID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[conn]
	if !ok {
		return "", false
	}
	delete(r.users, conn)
	if r.conns[u] == conn {
		delete(r.conns, u)
	}
	log.Info().Str("module", "app.registry").Str("user", string(u)).Str("conn", string(conn)).Msg("unregistered")
	return u, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
