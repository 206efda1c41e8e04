package app

import (
	"slices"
	"sync"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

type group struct {
	gen   uint64
	conns map[core.ConnID]struct{}
}

// Groups tracks which connections receive a room's broadcasts.
// Subscription is per connection, independent of room participation.
// A group belongs to one room generation: a newer generation replaces it,
// and operations carrying an older one leave it alone.
type Groups struct {
	mu     sync.RWMutex
	byRoom map[domain.RoomID]*group
	byConn map[core.ConnID]map[domain.RoomID]struct{}
}

func NewGroups() *Groups {
	return &Groups{
		byRoom: make(map[domain.RoomID]*group),
		byConn: make(map[core.ConnID]map[domain.RoomID]struct{}),
	}
}

// Subscribe adds conn to the group of room generation gen. It reports false,
// and changes nothing, when the group already belongs to a newer generation.
func (g *Groups) Subscribe(room domain.RoomID, gen uint64, conn core.ConnID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cur := g.byRoom[room]
	if cur != nil && cur.gen > gen {
		return false
	}
	if cur == nil || cur.gen < gen {
		g.dropLocked(room)
		cur = &group{gen: gen, conns: make(map[core.ConnID]struct{})}
		g.byRoom[room] = cur
	}
	cur.conns[conn] = struct{}{}
	if g.byConn[conn] == nil {
		g.byConn[conn] = make(map[domain.RoomID]struct{})
	}
	g.byConn[conn][room] = struct{}{}
	return true
}

func (g *Groups) Unsubscribe(room domain.RoomID, conn core.ConnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsubscribeLocked(room, conn)
}

func (g *Groups) unsubscribeLocked(room domain.RoomID, conn core.ConnID) {
	if cur, ok := g.byRoom[room]; ok {
		delete(cur.conns, conn)
		if len(cur.conns) == 0 {
			delete(g.byRoom, room)
		}
	}
	if set, ok := g.byConn[conn]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(g.byConn, conn)
		}
	}
}

// UnsubscribeAll drops conn from every group and returns the rooms it left.
func (g *Groups) UnsubscribeAll(conn core.ConnID) []domain.RoomID {
	g.mu.Lock()
	defer g.mu.Unlock()
	rooms := make([]domain.RoomID, 0, len(g.byConn[conn]))
	for room := range g.byConn[conn] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		g.unsubscribeLocked(room, conn)
	}
	slices.Sort(rooms)
	return rooms
}

// Drop removes the group of room generation gen, used when that room is
// deleted. A group already taken over by a newer generation is kept.
func (g *Groups) Drop(room domain.RoomID, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.byRoom[room]; ok && cur.gen <= gen {
		g.dropLocked(room)
	}
}

func (g *Groups) dropLocked(room domain.RoomID) {
	cur, ok := g.byRoom[room]
	if !ok {
		return
	}
	for conn := range cur.conns {
		if set, ok := g.byConn[conn]; ok {
			delete(set, room)
			if len(set) == 0 {
				delete(g.byConn, conn)
			}
		}
	}
	delete(g.byRoom, room)
}

// Subscribers snapshots the group now, leaving out except.
func (g *Groups) Subscribers(room domain.RoomID, except core.ConnID) []core.ConnID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cur, ok := g.byRoom[room]
	if !ok {
		return []core.ConnID{}
	}
	out := make([]core.ConnID, 0, len(cur.conns))
	for conn := range cur.conns {
		if conn != except {
			out = append(out, conn)
		}
	}
	slices.Sort(out)
	return out
}

func (g *Groups) IsSubscribed(room domain.RoomID, conn core.ConnID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cur, ok := g.byRoom[room]
	if !ok {
		return false
	}
	_, ok = cur.conns[conn]
	return ok
}
