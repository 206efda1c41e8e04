// Package relay forwards encoded events to connections. It keeps no
// history and applies no buffering beyond each connection's send queue.
package relay

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
)

type Fanout struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]core.SignalConnection
	policy app.Policy
}

func NewFanout(policy app.Policy) *Fanout {
	if policy == nil {
		policy = app.DropPolicy{}
	}
	return &Fanout{
		conns:  make(map[core.ConnID]core.SignalConnection),
		policy: policy,
	}
}

func (f *Fanout) Attach(id core.ConnID, sc core.SignalConnection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[id] = sc
}

func (f *Fanout) Detach(id core.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, id)
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.conns)
}

// Encode wraps a payload into the wire envelope.
func Encode(event domain.EventType, payload any) (core.Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(domain.Envelope{Event: event, Data: data})
}

// Deliver encodes d once and offers it to every target without blocking.
// Targets that are no longer attached are skipped.
func (f *Fanout) Deliver(d core.Delivery) core.PublishResult {
	res := core.PublishResult{}
	if len(d.To) == 0 {
		return res
	}
	frame, err := Encode(d.Event, d.Payload)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return res
	}

	targets := make([]core.SignalConnection, len(d.To))
	f.mu.RLock()
	for i, id := range d.To {
		targets[i] = f.conns[id]
	}
	f.mu.RUnlock()

	for i, sc := range targets {
		if sc == nil {
			continue
		}
		if err := sc.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, d.To[i])
			f.onDropped(d.To[i], sc, err)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "relay").Str("event", string(d.Event)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (f *Fanout) DeliverAll(ds []core.Delivery) {
	for _, d := range ds {
		f.Deliver(d)
	}
}

func (f *Fanout) onDropped(id core.ConnID, sc core.SignalConnection, err error) {
	switch f.policy.OnBackPressure(id) {
	case app.KickMember:
		log.Warn().Err(err).Str("module", "relay").Str("conn", string(id)).Msg("slow receiver kicked")
		sc.Close()
	case app.DropFrame, app.NoAction:
		log.Debug().Err(err).Str("module", "relay").Str("conn", string(id)).Msg("frame dropped")
	}
}
