package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrCannotConsume     = errors.New("cannot consume producer with given capabilities")
)

// joinAttempts bounds the retry when a room is torn down between lookup and
// peer registration.
const joinAttempts = 3

// peerSession owns the media objects of one peer. Entries are removed by
// the media engine's close callbacks, so removal must tolerate missing ids.
type peerSession struct {
	transports map[string]core.Transport
	producers  map[string]core.Producer
	consumers  map[string]core.Consumer
}

func newPeerSession() *peerSession {
	return &peerSession{
		transports: make(map[string]core.Transport),
		producers:  make(map[string]core.Producer),
		consumers:  make(map[string]core.Consumer),
	}
}

type room struct {
	code   domain.RoomCode
	router core.Router
	peers  map[domain.PeerID]*peerSession
}

// Orchestrator keeps one routing context per forwarding room and the media
// bookkeeping of every peer in it.
type Orchestrator struct {
	workers core.WorkerSource
	codecs  []domain.RtpCodecCapability

	// mu guards rooms and every peerSession table.
	mu       sync.Mutex
	rooms    map[domain.RoomCode]*room
	creating singleflight.Group
}

func NewOrchestrator(workers core.WorkerSource, codecs []domain.RtpCodecCapability) *Orchestrator {
	return &Orchestrator{
		workers: workers,
		codecs:  codecs,
		rooms:   make(map[domain.RoomCode]*room),
	}
}

var _ core.Forwarding = (*Orchestrator)(nil)

// GetOrCreateRoom returns the room's routing context, creating it on the
// next worker when the room does not exist yet.
func (o *Orchestrator) GetOrCreateRoom(ctx context.Context, code domain.RoomCode) (core.Router, error) {
	o.mu.Lock()
	if r, ok := o.rooms[code]; ok {
		o.mu.Unlock()
		return r.router, nil
	}
	o.mu.Unlock()

	v, err, _ := o.creating.Do(string(code), func() (any, error) {
		o.mu.Lock()
		if r, ok := o.rooms[code]; ok {
			o.mu.Unlock()
			return r.router, nil
		}
		o.mu.Unlock()

		w := o.workers.NextWorker()
		router, err := w.CreateRouter(ctx, o.codecs)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.rooms[code] = &room{code: code, router: router, peers: make(map[domain.PeerID]*peerSession)}
		o.mu.Unlock()
		log.Info().Str("module", "sfu").Str("room", code.String()).Int("worker", w.Index()).Str("router", router.ID()).Msg("room created")
		return router, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Router), nil
}

// AddPeer registers an empty session for peer. It reports false when the
// room does not exist.
func (o *Orchestrator) AddPeer(code domain.RoomCode, peer domain.PeerID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rooms[code]
	if !ok {
		return false
	}
	if _, exists := r.peers[peer]; !exists {
		r.peers[peer] = newPeerSession()
	}
	return true
}

// Join makes sure the room exists and peer has a session in it.
func (o *Orchestrator) Join(ctx context.Context, code domain.RoomCode, peer domain.PeerID) (domain.RtpCapabilities, error) {
	for range joinAttempts {
		router, err := o.GetOrCreateRoom(ctx, code)
		if err != nil {
			return domain.RtpCapabilities{}, err
		}
		if o.AddPeer(code, peer) {
			log.Info().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Msg("peer joined")
			return router.RtpCapabilities(), nil
		}
	}
	return domain.RtpCapabilities{}, ErrRoomNotFound
}

func (o *Orchestrator) RtpCapabilities(code domain.RoomCode) (domain.RtpCapabilities, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rooms[code]
	if !ok {
		return domain.RtpCapabilities{}, false
	}
	return r.router.RtpCapabilities(), true
}

// RemovePeer closes every transport of peer, which cascades to its producers
// and consumers, and drops the session. The room and its routing context go
// away with the last peer.
func (o *Orchestrator) RemovePeer(code domain.RoomCode, peer domain.PeerID) {
	o.mu.Lock()
	r, ok := o.rooms[code]
	if !ok {
		o.mu.Unlock()
		return
	}
	sess, ok := r.peers[peer]
	if !ok {
		o.mu.Unlock()
		return
	}
	transports := make([]core.Transport, 0, len(sess.transports))
	for _, t := range sess.transports {
		transports = append(transports, t)
	}
	delete(r.peers, peer)
	empty := len(r.peers) == 0
	if empty {
		delete(o.rooms, code)
	}
	o.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}

	o.mu.Lock()
	clear(sess.transports)
	clear(sess.producers)
	clear(sess.consumers)
	o.mu.Unlock()

	logger := log.With().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Logger()
	logger.Info().Int("transports", len(transports)).Msg("peer removed")
	if empty {
		r.router.Close()
		logger.Info().Msg("last peer left, room closed")
	}
}

// PeerCount returns the number of peers of the room, or -1 when the room
// does not exist.
func (o *Orchestrator) PeerCount(code domain.RoomCode) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rooms[code]
	if !ok {
		return -1
	}
	return len(r.peers)
}

// Close tears down every room. Used on shutdown.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	rooms := make([]*room, 0, len(o.rooms))
	for _, r := range o.rooms {
		rooms = append(rooms, r)
	}
	clear(o.rooms)
	o.mu.Unlock()

	for _, r := range rooms {
		r.router.Close()
	}
	log.Info().Str("module", "sfu").Int("rooms", len(rooms)).Msg("orchestrator closed")
}

// session must be called with o.mu held.
func (o *Orchestrator) session(code domain.RoomCode, peer domain.PeerID) (*room, *peerSession, error) {
	r, ok := o.rooms[code]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	sess, ok := r.peers[peer]
	if !ok {
		return nil, nil, ErrPeerNotFound
	}
	return r, sess, nil
}
