package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/app/relay"
	"github.com/dkeye/callhub/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func (s Settings) pongWait() time.Duration { return s.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Orch  *orch.Orchestrator
	Relay *relay.Fanout
	cfg   Settings

	wg   conc.WaitGroup
	mu   sync.Mutex
	live map[core.ConnID]*WsSignalConn
}

func NewSignalWSController(o *orch.Orchestrator, f *relay.Fanout, cfg Settings) *SignalWSController {
	return &SignalWSController{
		Orch:  o,
		Relay: f,
		cfg:   cfg,
		live:  make(map[core.ConnID]*WsSignalConn),
	}
}

type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until it drops
// or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.NewConnID(),
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ctl.mu.Lock()
	ctl.live[conn.id] = conn
	ctl.mu.Unlock()
	ctl.Relay.Attach(conn.id, conn)

	stop := context.AfterFunc(ctx, conn.Close)
	ctl.wg.Go(func() { ctl.writePump(conn) })
	ctl.wg.Go(func() {
		defer stop()
		ctl.readPump(conn)
	})
}

// teardown runs exactly once per connection, from the read pump.
func (ctl *SignalWSController) teardown(c *WsSignalConn) {
	ctl.Relay.Detach(c.id)
	ctl.Relay.DeliverAll(ctl.Orch.Disconnect(c.id))
	c.Close()

	ctl.mu.Lock()
	delete(ctl.live, c.id)
	ctl.mu.Unlock()
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("connection closed")
}

// Live reports the number of open connections.
func (ctl *SignalWSController) Live() int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.live)
}

// Shutdown closes every connection and waits for their pumps to finish.
func (ctl *SignalWSController) Shutdown() {
	ctl.mu.Lock()
	conns := make([]*WsSignalConn, 0, len(ctl.live))
	for _, c := range ctl.live {
		conns = append(conns, c)
	}
	ctl.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	ctl.wg.Wait()
}
