package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// relayMsg is a mesh negotiation message. Src is always stamped by the
// server.
type relayMsg struct {
	Type      string                   `json:"type"`
	Src       domain.PeerID            `json:"src,omitempty"`
	Dst       domain.PeerID            `json:"dst,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// MeshRelay forwards offers, answers and ICE candidates between mesh peers
// identified by their peer ids.
type MeshRelay struct {
	mu      sync.RWMutex
	peers   map[domain.PeerID]*WsSignalConn
	limiter *RateLimiter
	opts    Options
}

func NewMeshRelay(opts Options) *MeshRelay {
	opts = opts.withDefaults()
	return &MeshRelay{
		peers:   make(map[domain.PeerID]*WsSignalConn),
		limiter: NewRateLimiter(opts.RateMessages, opts.RateInterval),
		opts:    opts,
	}
}

func (r *MeshRelay) Connected(id domain.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

func (r *MeshRelay) HandleMesh(ctx context.Context, c *gin.Context) {
	id := domain.PeerID(c.Query("peerId"))
	if err := domain.ValidatePeerID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Connected(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "peer id taken"})
		return
	}
	logger := log.With().Str("module", "mesh.relay").Str("peer", string(id)).Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, r.opts.SendBuffer)

	pumpCtx, cancel := context.WithCancel(ctx)
	go writePump(pumpCtx, conn, r.opts, logger)

	r.mu.Lock()
	if _, taken := r.peers[id]; taken {
		r.mu.Unlock()
		sendRelay(conn, errorMsg{Type: "error", Error: "peer id taken"}, logger)
		conn.Close()
		cancel()
		return
	}
	r.peers[id] = conn
	r.mu.Unlock()
	logger.Info().Msg("mesh peer connected")
	sendRelay(conn, typeOnly{Type: "open"}, logger)

	go func() {
		defer cancel()
		readPump(conn, r.opts, logger, func(data []byte) { r.handle(id, conn, data, logger) })
		r.mu.Lock()
		if r.peers[id] == conn {
			delete(r.peers, id)
		}
		r.mu.Unlock()
		r.limiter.Forget(string(id))
		logger.Info().Msg("mesh peer disconnected")
	}()
}

func (r *MeshRelay) handle(src domain.PeerID, conn *WsSignalConn, data []byte, logger zerolog.Logger) {
	if !r.limiter.Allow(string(src)) {
		sendRelay(conn, errorMsg{Type: "error", Error: "Rate limit exceeded"}, logger)
		return
	}
	var msg relayMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		sendRelay(conn, errorMsg{Type: "error", Error: "Invalid message"}, logger)
		return
	}

	switch msg.Type {
	case "ping":
		sendRelay(conn, typeOnly{Type: "pong"}, logger)
		return
	case "offer", "answer":
		typ := webrtc.NewSDPType(msg.Type)
		desc := webrtc.SessionDescription{Type: typ, SDP: msg.SDP}
		if _, err := desc.Unmarshal(); err != nil {
			logger.Warn().Err(err).Str("type", msg.Type).Msg("invalid sdp")
			sendRelay(conn, errorMsg{Type: "error", Error: "Invalid SDP"}, logger)
			return
		}
	case "candidate":
		if msg.Candidate == nil {
			sendRelay(conn, errorMsg{Type: "error", Error: "Missing candidate"}, logger)
			return
		}
	default:
		sendRelay(conn, errorMsg{Type: "error", Error: "Unknown message type: " + msg.Type}, logger)
		return
	}

	if msg.Dst == "" {
		sendRelay(conn, errorMsg{Type: "error", Error: "Missing dst"}, logger)
		return
	}
	r.mu.RLock()
	dst, ok := r.peers[msg.Dst]
	r.mu.RUnlock()
	if !ok {
		sendRelay(conn, errorMsg{Type: "error", Error: "Peer not connected: " + string(msg.Dst)}, logger)
		return
	}
	msg.Src = src
	b, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("relay marshal")
		return
	}
	if err := dst.TrySend(b); err != nil {
		logger.Warn().Err(err).Str("dst", string(msg.Dst)).Msg("relay send")
		sendRelay(conn, errorMsg{Type: "error", Error: "Peer unavailable: " + string(msg.Dst)}, logger)
	}
}

func sendRelay(conn *WsSignalConn, v any, logger zerolog.Logger) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msg("relay marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		logger.Debug().Err(err).Msg("relay send")
	}
}
