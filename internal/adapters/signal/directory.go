package signal

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

type member struct {
	conn core.SignalConnection
	name string
}

// Directory maps forwarding rooms to the sockets and display names of their
// peers. It never closes adapter-owned connections.
type Directory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]map[domain.PeerID]member
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[domain.RoomCode]map[domain.PeerID]member)}
}

// Register binds peer to conn, replacing any earlier socket of the same peer.
func (d *Directory) Register(code domain.RoomCode, peer domain.PeerID, name string, conn core.SignalConnection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[code]
	if !ok {
		members = make(map[domain.PeerID]member)
		d.rooms[code] = members
	}
	members[peer] = member{conn: conn, name: name}
	log.Debug().Str("module", "signal").Str("room", code.String()).Str("peer", string(peer)).Msg("socket registered")
}

// Remove unregisters peer if it is still bound to conn and returns the name
// it was registered with. The room entry goes away with its last member.
func (d *Directory) Remove(code domain.RoomCode, peer domain.PeerID, conn core.SignalConnection) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[code]
	if !ok {
		return "", false
	}
	m, ok := members[peer]
	if !ok || m.conn != conn {
		return "", false
	}
	delete(members, peer)
	if len(members) == 0 {
		delete(d.rooms, code)
	}
	log.Debug().Str("module", "signal").Str("room", code.String()).Str("peer", string(peer)).Msg("socket removed")
	return m.name, true
}

// Name returns the display name of peer, or the default label.
func (d *Directory) Name(code domain.RoomCode, peer domain.PeerID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if m, ok := d.rooms[code][peer]; ok {
		return m.name
	}
	return domain.DefaultDisplayName
}

// Participants lists everybody registered in the room except one peer.
func (d *Directory) Participants(code domain.RoomCode, except domain.PeerID) []domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Participant, 0, len(d.rooms[code]))
	for id, m := range d.rooms[code] {
		if id == except {
			continue
		}
		out = append(out, domain.Participant{PeerID: id, Name: m.name})
	}
	slices.SortFunc(out, func(a, b domain.Participant) int { return cmp.Compare(a.PeerID, b.PeerID) })
	return out
}

func (d *Directory) Size(code domain.RoomCode) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[code])
}

// Broadcast queues f on every open socket of the room except the one of
// from. Closed sockets are skipped; full queues are reported in Dropped.
func (d *Directory) Broadcast(code domain.RoomCode, from domain.PeerID, f core.Frame) core.PublishResult {
	d.mu.RLock()
	targets := make([]core.SignalConnection, 0, len(d.rooms[code]))
	for id, m := range d.rooms[code] {
		if id != from {
			targets = append(targets, m.conn)
		}
	}
	d.mu.RUnlock()

	res := core.PublishResult{}
	for _, conn := range targets {
		if !conn.IsOpen() {
			res.Skipped++
			continue
		}
		if err := conn.TrySend(f); err != nil {
			if errors.Is(err, ErrClosed) {
				res.Skipped++
				continue
			}
			res.Dropped = append(res.Dropped, conn)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "signal").Str("room", code.String()).Str("from", string(from)).Int("sent_to", res.SendTo).Int("skipped", res.Skipped).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
