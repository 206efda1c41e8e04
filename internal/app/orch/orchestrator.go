// Package orch is the session coordinator: every lifecycle event passes
// through Handle or Disconnect, which mutate the stores and return the
// deliveries to fan out. It never writes to a connection itself.
package orch

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

type Options struct {
	// OverwriteRooms lets create_room replace a live room with the same id.
	OverwriteRooms bool
	// StrictMembership drops ready and media events from connections that
	// are not subscribed to the room.
	StrictMembership bool
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomStore
	Groups   *app.Groups
	Limiter  *app.RoomRateLimiter
	Opts     Options

	now func() time.Time
}

func New(reg *app.Registry, rooms core.RoomStore, groups *app.Groups, limiter *app.RoomRateLimiter, opts Options) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Groups:   groups,
		Limiter:  limiter,
		Opts:     opts,
		now:      time.Now,
	}
}

// HandleFrame decodes one raw inbound frame and dispatches it.
func (o *Orchestrator) HandleFrame(conn core.ConnID, data []byte) []core.Delivery {
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("bad envelope")
		return errorTo(conn, "invalid event")
	}
	return o.Handle(conn, env)
}

// Handle applies one event. Every call re-reads the stores; nothing is
// cached between events.
func (o *Orchestrator) Handle(conn core.ConnID, env domain.Envelope) []core.Delivery {
	switch env.Event {
	case domain.EventRegister:
		return o.register(conn, env)
	case domain.EventCreateRoom:
		return o.createRoom(conn, env)
	case domain.EventJoinRoom:
		return o.joinRoom(conn, env)
	case domain.EventLeaveRoom:
		return o.leaveRoom(conn, env)
	case domain.EventReady:
		return o.ready(conn, env)
	case domain.EventAudioChunk:
		return o.audioChunk(conn, env)
	case domain.EventVideoFrame:
		return o.videoFrame(conn, env)
	default:
		log.Warn().Str("module", "orch").Str("conn", string(conn)).Str("event", string(env.Event)).Msg("unknown event")
		return nil
	}
}

func (o *Orchestrator) decode(conn core.ConnID, env domain.Envelope, v any) ([]core.Delivery, bool) {
	if err := domain.DecodePayload(env.Data, v); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("event", string(env.Event)).Msg("rejected payload")
		return errorTo(conn, "invalid "+string(env.Event)+" payload"), false
	}
	return nil, true
}

func errorTo(conn core.ConnID, msg string) []core.Delivery {
	return []core.Delivery{{
		To:      []core.ConnID{conn},
		Event:   domain.EventError,
		Payload: domain.ErrorMessage{Message: msg},
	}}
}

func errorFor(conn core.ConnID, err error) []core.Delivery {
	for _, known := range []error{domain.ErrRoomNotFound, domain.ErrRoomExists, domain.ErrRateLimited} {
		if errors.Is(err, known) {
			return errorTo(conn, known.Error())
		}
	}
	return errorTo(conn, "internal error")
}

func (o *Orchestrator) register(conn core.ConnID, env domain.Envelope) []core.Delivery {
	var p domain.RegisterPayload
	if out, ok := o.decode(conn, env, &p); !ok {
		return out
	}
	user, err := domain.NewUserID(p.UserID)
	if err != nil {
		return errorTo(conn, "invalid "+string(env.Event)+" payload")
	}
	o.Registry.Register(user, conn)
	return nil
}
