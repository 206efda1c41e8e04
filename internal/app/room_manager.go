package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

// RoomStore owns every live room. The store lock guards only the id → room
// map; membership changes are serialized by each room's own lock.
// Lock order is store, then room.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
	gen   uint64
	now   func() time.Time
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[domain.RoomID]*core.Room),
		now:   time.Now,
	}
}

func (s *RoomStore) lookup(id domain.RoomID) (*core.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// unlink removes r only if it is still the room registered under id.
func (s *RoomStore) unlink(id domain.RoomID, r *core.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[id]; ok && cur == r {
		delete(s.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room deleted")
	}
}

func (s *RoomStore) Create(
	id domain.RoomID,
	owner domain.UserID,
	conn core.ConnID,
	kind domain.CallKind,
	overwrite bool,
) (domain.RoomInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.rooms[id]; ok && !old.Closed() {
		if !overwrite {
			return domain.RoomInfo{}, domain.ErrRoomExists
		}
		old.Close()
		log.Warn().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room overwritten")
	}
	s.gen++
	r := core.NewRoom(id, s.gen, owner, conn, kind, s.now())
	s.rooms[id] = r
	info, _ := r.Snapshot()
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("owner", string(owner)).Str("kind", string(kind)).Msg("room created")
	return info, nil
}

func (s *RoomStore) Get(id domain.RoomID) (domain.RoomInfo, bool) {
	r, ok := s.lookup(id)
	if !ok {
		return domain.RoomInfo{}, false
	}
	return r.Snapshot()
}

// AddParticipant reports the generation of the room user was added to.
func (s *RoomStore) AddParticipant(id domain.RoomID, user domain.UserID, conn core.ConnID) (uint64, error) {
	r, ok := s.lookup(id)
	if !ok {
		return 0, domain.ErrRoomNotFound
	}
	if err := r.Add(user, conn); err != nil {
		return 0, err
	}
	return r.Gen(), nil
}

func (s *RoomStore) RemoveParticipant(id domain.RoomID, user domain.UserID) (core.Removal, error) {
	r, ok := s.lookup(id)
	if !ok {
		return core.Removal{}, domain.ErrRoomNotFound
	}
	res, err := r.Remove(user)
	if err != nil {
		return core.Removal{}, err
	}
	res.Deleted = s.deleteIfEmpty(r)
	return res, nil
}

// DeleteIfEmpty is idempotent; every removal path runs it on the room it
// touched.
func (s *RoomStore) DeleteIfEmpty(id domain.RoomID) bool {
	r, ok := s.lookup(id)
	if !ok {
		return false
	}
	return s.deleteIfEmpty(r)
}

func (s *RoomStore) deleteIfEmpty(r *core.Room) bool {
	if !r.CloseIfEmpty() {
		return false
	}
	s.unlink(r.ID(), r)
	return true
}

// Evict removes user, and anything still bound to conn, from every room.
func (s *RoomStore) Evict(user domain.UserID, conn core.ConnID) []core.Eviction {
	s.mu.RLock()
	rooms := make([]*core.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	var out []core.Eviction
	for _, r := range rooms {
		removed, _ := r.RemoveMatching(user, conn)
		if len(removed) == 0 {
			continue
		}
		out = append(out, core.Eviction{
			RoomID:  r.ID(),
			Gen:     r.Gen(),
			Users:   removed,
			Deleted: s.deleteIfEmpty(r),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (s *RoomStore) List() []domain.RoomInfo {
	s.mu.RLock()
	rooms := make([]*core.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		if info, ok := r.Snapshot(); ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *RoomStore) Len() int {
	return len(s.List())
}
