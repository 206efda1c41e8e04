package core

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/callhub/internal/domain"
)

// Room is the live, lock-guarded room entity. Only the store hands it out.
// Once closed a room never reopens; the store replaces it instead, under a
// higher generation.
type Room struct {
	id        domain.RoomID
	gen       uint64
	owner     domain.UserID
	kind      domain.CallKind
	createdAt time.Time

	mu           sync.Mutex
	participants map[domain.UserID]ConnID
	closed       bool
}

func NewRoom(id domain.RoomID, gen uint64, owner domain.UserID, conn ConnID, kind domain.CallKind, createdAt time.Time) *Room {
	return &Room{
		id:           id,
		gen:          gen,
		owner:        owner,
		kind:         kind,
		createdAt:    createdAt,
		participants: map[domain.UserID]ConnID{owner: conn},
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Gen() uint64 { return r.gen }

func (r *Room) Add(u domain.UserID, c ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrRoomNotFound
	}
	r.participants[u] = c
	return nil
}

// Remove drops u. Taking out the last participant closes the room.
func (r *Room) Remove(u domain.UserID) (Removal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Removal{}, domain.ErrRoomNotFound
	}
	_, had := r.participants[u]
	delete(r.participants, u)
	return Removal{Removed: had, Deleted: r.closeIfEmptyLocked(), Gen: r.gen}, nil
}

// RemoveMatching drops the participant u and any participant still bound to c.
func (r *Room) RemoveMatching(u domain.UserID, c ConnID) (removed []domain.UserID, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	for pu, pc := range r.participants {
		if (u != "" && pu == u) || pc == c {
			removed = append(removed, pu)
		}
	}
	for _, pu := range removed {
		delete(r.participants, pu)
	}
	if len(removed) > 0 {
		emptied = r.closeIfEmptyLocked()
	}
	slices.Sort(removed)
	return removed, emptied
}

// CloseIfEmpty reports whether the room is closed and empty afterwards.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeIfEmptyLocked()
}

func (r *Room) closeIfEmptyLocked() bool {
	if len(r.participants) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Close marks the room dead regardless of membership.
func (r *Room) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) Snapshot() (domain.RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.RoomInfo{}, false
	}
	users := slices.Sorted(maps.Keys(r.participants))
	return domain.RoomInfo{
		ID:           r.id,
		Owner:        r.owner,
		Kind:         r.kind,
		Participants: users,
		CreatedAt:    r.createdAt,
		Gen:          r.gen,
	}, true
}
