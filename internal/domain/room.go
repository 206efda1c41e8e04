package domain

import (
	"errors"
	"fmt"
	"time"
)

type RoomID string

// CallKind is the media type negotiated for a room.
type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrInvalidCallKind = errors.New("invalid call type")
	ErrRateLimited     = errors.New("too many rooms created")
)

func ParseCallKind(s string) (CallKind, error) {
	switch k := CallKind(s); k {
	case CallAudio, CallVideo:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCallKind, s)
	}
}

// RoomInfo is a read-only copy of a room taken under its lock.
// Holding one never pins the live room.
type RoomInfo struct {
	ID           RoomID    `json:"id"`
	Owner        UserID    `json:"owner"`
	Kind         CallKind  `json:"call_type"`
	Participants []UserID  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	// Gen tells apart rooms that reuse the same id.
	Gen          uint64    `json:"-"`
}
