package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

func (o *Orchestrator) createRoom(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.CreateRoomPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	kind, err := domain.ParseCallKind(p.CallType)
	if err != nil {
		return errorTo(conn, "invalid "+string(env.Event)+" payload")
	}
	roomID, owner := domain.RoomID(p.RoomID), domain.UserID(p.CallerID)

	// A registered connection is limited by its own identity, whatever
	// callerId it claims.
	quota := owner
	if u, ok := o.Registry.UserOf(conn); ok {
		quota = u
	}
	if !o.Limiter.Allow(quota) {
		log.Warn().Str("module", "orch").Str("user", string(quota)).Msg("create rate limited")
		return errorFor(conn, domain.ErrRateLimited)
	}
	info, err := o.Rooms.Create(roomID, owner, conn, kind, o.Opts.OverwriteRooms)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("room_id", p.RoomID).Msg("create rejected")
		return errorFor(conn, err)
	}
	// The new generation takes the group over, so members of an overwritten
	// room stop receiving it.
	o.Groups.Subscribe(roomID, info.Gen, conn)
	return nil
}

func (o *Orchestrator) joinRoom(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.RoomUserPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	roomID, user := domain.RoomID(p.RoomID), domain.UserID(p.UserID)

	gen, err := o.Rooms.AddParticipant(roomID, user, conn)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("room_id", p.RoomID).Str("user", p.UserID).Msg("join rejected")
		return errorFor(conn, err)
	}
	// The room may have been deleted, or replaced under the same id, between
	// the add and the subscribe.
	subscribed := o.Groups.Subscribe(roomID, gen, conn)
	if info, ok := o.Rooms.Get(roomID); !subscribed || !ok || info.Gen != gen {
		if subscribed {
			o.Groups.Unsubscribe(roomID, conn)
		}
		return errorFor(conn, domain.ErrRoomNotFound)
	}
	log.Info().Str("module", "orch").Str("room_id", p.RoomID).Str("user", p.UserID).Msg("joined")

	return []core.Delivery{{
		To:      o.Groups.Subscribers(roomID, ""),
		Event:   domain.EventParticipantJoined,
		Payload: domain.ParticipantJoined{UserID: user, RoomID: roomID},
	}}
}

func (o *Orchestrator) leaveRoom(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.RoomUserPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	roomID, user := domain.RoomID(p.RoomID), domain.UserID(p.UserID)

	res, err := o.Rooms.RemoveParticipant(roomID, user)
	o.Groups.Unsubscribe(roomID, conn)
	if err != nil {
		return errorFor(conn, err)
	}
	log.Info().Str("module", "orch").Str("room_id", p.RoomID).Str("user", p.UserID).Bool("deleted", res.Deleted).Msg("left")
	if res.Deleted {
		o.Groups.Drop(roomID, res.Gen)
		return nil
	}
	if !res.Removed {
		return nil
	}
	return []core.Delivery{participantLeft(o.Groups.Subscribers(roomID, ""), user)}
}

// Disconnect unwinds everything conn held. The transport calls it once per
// connection; a second call finds nothing left to do.
func (o *Orchestrator) Disconnect(conn core.ConnID) []core.Delivery {
	user, _ := o.Registry.Unregister(conn)
	o.Groups.UnsubscribeAll(conn)

	var out []core.Delivery
	for _, ev := range o.Rooms.Evict(user, conn) {
		if ev.Deleted {
			o.Groups.Drop(ev.RoomID, ev.Gen)
			continue
		}
		subs := o.Groups.Subscribers(ev.RoomID, "")
		for _, u := range ev.Users {
			out = append(out, participantLeft(subs, u))
		}
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Int("notices", len(out)).Int("online", o.Registry.Len()).Msg("disconnected")
	return out
}

func participantLeft(to []core.ConnID, user domain.UserID) core.Delivery {
	return core.Delivery{
		To:      to,
		Event:   domain.EventParticipantLeft,
		Payload: domain.ParticipantLeft{UserID: user},
	}
}
