package mesh

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

const codeAttempts = 16

var ErrCodeSpaceExhausted = errors.New("could not allocate a free room code")

type room struct {
	code     domain.RoomCode
	hostID   domain.PeerID
	peers    []domain.PeerID
	pending  map[domain.PeerID]string
	names    map[domain.PeerID]string
	screen   bool
	recorder []domain.PeerID
}

func (r *room) hasPeer(id domain.PeerID) bool { return slices.Contains(r.peers, id) }

func (r *room) addPeer(id domain.PeerID) {
	if !r.hasPeer(id) {
		r.peers = append(r.peers, id)
	}
}

func (r *room) allowRecording(id domain.PeerID) {
	if !slices.Contains(r.recorder, id) {
		r.recorder = append(r.recorder, id)
	}
}

// clonePeers never returns nil so empty lists encode as [].
func clonePeers(ids []domain.PeerID) []domain.PeerID {
	return append(make([]domain.PeerID, 0, len(ids)), ids...)
}

func (r *room) name(id domain.PeerID) string {
	if n, ok := r.names[id]; ok {
		return n
	}
	return domain.DefaultDisplayName
}

func (r *room) participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.peers))
	for _, id := range r.peers {
		out = append(out, domain.Participant{PeerID: id, Name: r.name(id)})
	}
	return out
}

func (r *room) settings() core.RoomSettings {
	return core.RoomSettings{ScreenShareEnabled: r.screen, RecordingAllowed: clonePeers(r.recorder)}
}

// Registry is the in-memory mesh room directory. All state is lost on
// restart.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomCode]*room
	newCode func() (domain.RoomCode, error)
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[domain.RoomCode]*room),
		newCode: domain.NewRoomCode,
	}
}

var _ core.MeshRooms = (*Registry)(nil)

func (g *Registry) CreateRoom() (domain.RoomCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for range codeAttempts {
		code, err := g.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := g.rooms[code]; taken {
			log.Debug().Str("module", "mesh").Str("room", code.String()).Msg("room code collision, retrying")
			continue
		}
		g.rooms[code] = &room{
			code:    code,
			pending: make(map[domain.PeerID]string),
			names:   make(map[domain.PeerID]string),
		}
		log.Info().Str("module", "mesh").Str("room", code.String()).Msg("room created")
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// lookup must be called with g.mu held.
func (g *Registry) lookup(code string) (*room, bool) {
	r, ok := g.rooms[domain.NormalizeCode(code)]
	return r, ok
}

func (g *Registry) GetRoom(code string) (core.RoomSnapshot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.lookup(code)
	if !ok {
		return core.RoomSnapshot{}, false
	}
	s := r.settings()
	return core.RoomSnapshot{
		Code:               r.code,
		HasHost:            r.hostID != "",
		Peers:              clonePeers(r.peers),
		Participants:       r.participants(),
		ScreenShareEnabled: s.ScreenShareEnabled,
		RecordingAllowed:   s.RecordingAllowed,
	}, true
}

func (g *Registry) Participants(code string) []domain.Participant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.lookup(code)
	if !ok {
		return []domain.Participant{}
	}
	return r.participants()
}

// SetHost makes peer the host. A later call replaces the previous host, who
// stays a regular peer.
func (g *Registry) SetHost(code string, peer domain.PeerID, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	if r.hostID != "" && r.hostID != peer {
		log.Warn().Str("module", "mesh").Str("room", r.code.String()).Str("old_host", string(r.hostID)).Str("peer", string(peer)).Msg("host replaced")
	}
	r.hostID = peer
	r.addPeer(peer)
	r.allowRecording(peer)
	if name != "" || r.names[peer] == "" {
		r.names[peer] = domain.DisplayName(name)
	}
	log.Info().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Msg("host set")
	return true
}

func (g *Registry) RequestJoin(code string, peer domain.PeerID, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	r.pending[peer] = domain.DisplayName(name)
	log.Info().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Msg("join requested")
	return true
}

func (g *Registry) Pending(code string) []domain.Participant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.lookup(code)
	if !ok {
		return []domain.Participant{}
	}
	out := make([]domain.Participant, 0, len(r.pending))
	for id, name := range r.pending {
		out = append(out, domain.Participant{PeerID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b domain.Participant) int { return cmp.Compare(a.PeerID, b.PeerID) })
	return out
}

// ApproveJoin admits peer and returns the resulting peer list, or nil when
// the room is unknown.
func (g *Registry) ApproveJoin(code string, peer domain.PeerID) []domain.PeerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return nil
	}
	if name, waiting := r.pending[peer]; waiting {
		r.names[peer] = name
		delete(r.pending, peer)
	}
	r.addPeer(peer)
	log.Info().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Msg("join approved")
	return clonePeers(r.peers)
}

// AdmissionState reports whether peer is admitted, waiting or unknown to the
// room. ok is false when the room does not exist.
func (g *Registry) AdmissionState(code string, peer domain.PeerID) (domain.AdmissionState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.lookup(code)
	if !ok {
		return domain.AdmissionNone, false
	}
	if r.hasPeer(peer) {
		return domain.AdmissionActive, true
	}
	if _, waiting := r.pending[peer]; waiting {
		return domain.AdmissionPending, true
	}
	return domain.AdmissionNone, true
}

func (g *Registry) RejectJoin(code string, peer domain.PeerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	delete(r.pending, peer)
	log.Info().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Msg("join rejected")
	return true
}

// LeaveRoom removes peer everywhere in the room. The room is destroyed when
// the host leaves or nobody is left.
func (g *Registry) LeaveRoom(code string, peer domain.PeerID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return
	}
	r.peers = slices.DeleteFunc(r.peers, func(id domain.PeerID) bool { return id == peer })
	r.recorder = slices.DeleteFunc(r.recorder, func(id domain.PeerID) bool { return id == peer })
	delete(r.pending, peer)
	delete(r.names, peer)

	logger := log.With().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Logger()
	switch {
	case r.hostID == peer:
		delete(g.rooms, r.code)
		logger.Info().Msg("host left, room destroyed")
	case len(r.peers) == 0:
		delete(g.rooms, r.code)
		logger.Info().Msg("last peer left, room destroyed")
	default:
		logger.Info().Int("peers", len(r.peers)).Msg("peer left")
	}
}

func (g *Registry) SetScreenShare(code string, enabled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	r.screen = enabled
	return true
}

func (g *Registry) AllowRecording(code string, peer domain.PeerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	r.allowRecording(peer)
	return true
}

// DisallowRecording revokes peer's recording permission. The host's
// permission cannot be revoked; the call still succeeds.
func (g *Registry) DisallowRecording(code string, peer domain.PeerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.lookup(code)
	if !ok {
		return false
	}
	if peer == r.hostID {
		log.Debug().Str("module", "mesh").Str("room", r.code.String()).Str("peer", string(peer)).Msg("host recording permission is permanent")
		return true
	}
	r.recorder = slices.DeleteFunc(r.recorder, func(id domain.PeerID) bool { return id == peer })
	return true
}

func (g *Registry) Settings(code string) (core.RoomSettings, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.lookup(code)
	if !ok {
		return core.RoomSettings{}, false
	}
	return r.settings(), true
}
