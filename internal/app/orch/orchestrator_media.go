package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

func (o *Orchestrator) subscribed(conn core.ConnID, roomID domain.RoomID, event domain.EventType) bool {
	if !o.Opts.StrictMembership || o.Groups.IsSubscribed(roomID, conn) {
		return true
	}
	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("room_id", string(roomID)).Str("event", string(event)).Msg("not subscribed, dropped")
	return false
}

func (o *Orchestrator) ready(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.RoomUserPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	roomID := domain.RoomID(p.RoomID)
	if !o.subscribed(conn, roomID, env.Event) {
		return nil
	}
	return []core.Delivery{{
		To:      o.Groups.Subscribers(roomID, conn),
		Event:   domain.EventPeerReady,
		Payload: domain.PeerReady{UserID: domain.UserID(p.UserID)},
	}}
}

func (o *Orchestrator) audioChunk(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.AudioChunkPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	roomID := domain.RoomID(p.RoomID)
	if !o.subscribed(conn, roomID, env.Event) {
		return nil
	}
	return []core.Delivery{{
		To:    o.Groups.Subscribers(roomID, conn),
		Event: domain.EventAudioChunk,
		Payload: domain.AudioChunk{
			Chunk:  p.Chunk,
			UserID: domain.UserID(p.UserID),
			TS:     o.now().UnixMilli(),
		},
	}}
}

func (o *Orchestrator) videoFrame(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.VideoFramePayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	roomID := domain.RoomID(p.RoomID)
	if !o.subscribed(conn, roomID, env.Event) {
		return nil
	}
	return []core.Delivery{{
		To:      o.Groups.Subscribers(roomID, conn),
		Event:   domain.EventVideoFrame,
		Payload: domain.VideoFrame{Frame: p.Frame, UserID: domain.UserID(p.UserID)},
	}}
}
