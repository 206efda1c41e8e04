package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

type EventType string

// Inbound, client → hub.
const (
	EventRegister   EventType = "call_register"
	EventCreateRoom EventType = "call_create_room"
	EventJoinRoom   EventType = "call_join_room"
	EventAudioChunk EventType = "call_audio_chunk"
	EventVideoFrame EventType = "call_video_frame"
	EventReady      EventType = "call_ready"
	EventLeaveRoom  EventType = "call_leave_room"
)

// Outbound, hub → client. Media events reuse the inbound names.
const (
	EventError             EventType = "call_error"
	EventParticipantJoined EventType = "call_participant_joined"
	EventParticipantLeft   EventType = "call_participant_left"
	EventPeerReady         EventType = "call_peer_ready"
)

var ErrMalformedPayload = errors.New("malformed payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedPayload)
	}
	return env, nil
}

// DecodePayload unmarshals data into v and runs its validate tags.
func DecodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// RegisterPayload accepts both a bare "userId" string and {"userId": "..."}.
type RegisterPayload struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

func (p *RegisterPayload) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.UserID = s
		return nil
	}
	type plain RegisterPayload
	var obj plain
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*p = RegisterPayload(obj)
	return nil
}

type CreateRoomPayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	CallerID string `json:"callerId" validate:"required,max=128"`
	CallType string `json:"callType" validate:"required,oneof=audio video"`
}

// RoomUserPayload is shared by join, ready and leave.
type RoomUserPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	UserID string `json:"userId" validate:"required,max=128"`
}

type AudioChunkPayload struct {
	RoomID string          `json:"roomId" validate:"required,max=128"`
	Chunk  json.RawMessage `json:"chunk" validate:"required"`
	UserID string          `json:"userId" validate:"required,max=128"`
}

type VideoFramePayload struct {
	RoomID string          `json:"roomId" validate:"required,max=128"`
	Frame  json.RawMessage `json:"frame" validate:"required"`
	UserID string          `json:"userId" validate:"required,max=128"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type ParticipantJoined struct {
	UserID UserID `json:"userId"`
	RoomID RoomID `json:"roomId"`
}

type ParticipantLeft struct {
	UserID UserID `json:"userId"`
}

type PeerReady struct {
	UserID UserID `json:"userId"`
}

// AudioChunk is relayed as-is; TS is unix millis at relay time.
type AudioChunk struct {
	Chunk  json.RawMessage `json:"chunk"`
	UserID UserID          `json:"userId"`
	TS     int64           `json:"ts"`
}

type VideoFrame struct {
	Frame  json.RawMessage `json:"frame"`
	UserID UserID          `json:"userId"`
}
