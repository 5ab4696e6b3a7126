package signal

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// SignalWSController serves the forwarding-mode signaling websocket.
type SignalWSController struct {
	fwd     core.Forwarding
	dir     *Directory
	limiter *RateLimiter
	opts    Options
}

func NewSignalWSController(fwd core.Forwarding, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		fwd:     fwd,
		dir:     NewDirectory(),
		limiter: NewRateLimiter(opts.RateMessages, opts.RateInterval),
		opts:    opts,
	}
}

// Directory exposes the per-room socket directory.
func (ctl *SignalWSController) Directory() *Directory { return ctl.dir }

// channel is the state of one signaling connection. It is only touched by
// the connection's read goroutine.
type channel struct {
	ctl   *SignalWSController
	ctx   context.Context
	conn  *WsSignalConn
	token string
	base  zerolog.Logger
	log   zerolog.Logger

	room domain.RoomCode
	peer domain.PeerID
}

func (ch *channel) joined() bool { return ch.room != "" && ch.peer != "" }

// HandleSignal upgrades the request and serves it until the socket closes.
// ctx bounds the write pump and every media call the connection makes. It is
// not cancelled when the socket closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	if token == "" {
		token = uuid.NewString()
	}
	logger := log.With().Str("module", "signal").Str("sid", token).Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	logger.Info().Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	ch := &channel{ctl: ctl, ctx: ctx, conn: conn, token: token, base: logger, log: logger}

	pumpCtx, cancel := context.WithCancel(ctx)
	go writePump(pumpCtx, conn, ctl.opts, logger)
	go func() {
		defer cancel()
		readPump(conn, ctl.opts, logger, ch.handle)
		ch.disconnect()
		ctl.limiter.Forget(token)
		logger.Info().Msg("WS connection closed")
	}()
}

func (ch *channel) handle(data []byte) {
	if !ch.ctl.limiter.Allow(ch.token) {
		ch.sendError("Rate limit exceeded")
		return
	}
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		ch.log.Warn().Err(err).Msg("bad json")
		ch.sendError("Invalid message")
		return
	}

	switch msg.Type {
	case "join":
		ch.handleJoin(msg)
	case "createTransport":
		ch.handleCreateTransport()
	case "connectTransport":
		ch.handleConnectTransport(msg)
	case "produce":
		ch.handleProduce(msg)
	case "consume":
		ch.handleConsume(msg)
	case "getProducers":
		ch.handleGetProducers()
	case "ping":
		ch.handlePing()
	default:
		ch.log.Warn().Str("type", msg.Type).Msg("unknown signal")
		ch.sendError("Unknown message type: " + msg.Type)
	}
}

func (ch *channel) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ch.log.Error().Err(err).Msg("sendJSON marshal")
		return
	}
	if err := ch.conn.TrySend(b); err != nil {
		ch.log.Debug().Err(err).Msg("sendJSON")
	}
}

func (ch *channel) sendError(text string) {
	ch.sendJSON(errorMsg{Type: "error", Error: text})
}

// broadcast delivers v to everybody in code except from and applies the
// slow-peer policy to sockets whose queues are full.
func (ch *channel) broadcast(code domain.RoomCode, from domain.PeerID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ch.log.Error().Err(err).Msg("broadcast marshal")
		return
	}
	res := ch.ctl.dir.Broadcast(code, from, b)
	for _, slow := range res.Dropped {
		switch ch.ctl.opts.SlowPeer.OnBackPressure(code, slow) {
		case KickPeer:
			ch.log.Warn().Msg("kicking slow peer")
			slow.Close()
		case DropFrame, NoAction:
		}
	}
}
