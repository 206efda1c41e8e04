package core

import (
	"github.com/google/uuid"

	"github.com/dkeye/callhub/internal/domain"
)

// Frame is an encoded outbound envelope.
type Frame []byte

// ConnID identifies one live transport connection.
type ConnID string

func NewConnID() ConnID { return ConnID(uuid.NewString()) }

//go:generate mockgen -destination=mocks/signal_connection.go -package=mocks . SignalConnection

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Delivery is one outbound event with its receivers already resolved.
type Delivery struct {
	To      []ConnID
	Event   domain.EventType
	Payload any
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// Removal describes the outcome of taking one participant out of a room.
type Removal struct {
	Removed bool
	Deleted bool
	Gen     uint64
}

// Eviction is one room touched by a disconnect sweep.
type Eviction struct {
	RoomID  domain.RoomID
	Gen     uint64
	Users   []domain.UserID
	Deleted bool
}

// RoomStore is the authoritative membership source.
// Implementations serialize mutations per room. Every room carries a
// generation, unique within the store, so callers can tell a recreated room
// from the one they touched.
type RoomStore interface {
	Create(id domain.RoomID, owner domain.UserID, conn ConnID, kind domain.CallKind, overwrite bool) (domain.RoomInfo, error)
	Get(id domain.RoomID) (domain.RoomInfo, bool)
	AddParticipant(id domain.RoomID, user domain.UserID, conn ConnID) (gen uint64, err error)
	RemoveParticipant(id domain.RoomID, user domain.UserID) (Removal, error)
	DeleteIfEmpty(id domain.RoomID) bool
	Evict(user domain.UserID, conn ConnID) []Eviction
	List() []domain.RoomInfo
}
