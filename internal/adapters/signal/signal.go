package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/app/orch"
	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

// Options tunes the transport of every signaling connection.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: limiter,
		opts:    opts.withDefaults(),
	}
}

// WsSignalConn implements core.SignalConnection over a websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one peer until it disconnects.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	peerID := domain.PeerID(uuid.NewString())
	log.Info().Str("module", "signal").Str("peer", string(peerID)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	sess := orch.NewSession(peerID, conn)
	connCtx, cancel := context.WithCancel(ctx)

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, sess, conn)
}
