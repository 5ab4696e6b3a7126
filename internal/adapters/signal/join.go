package signal

import (
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

func (ch *channel) handleJoin(msg inbound) {
	if msg.RoomCode == "" || msg.PeerID == "" {
		ch.sendError("Missing roomCode or peerId")
		return
	}
	if err := domain.ValidatePeerID(msg.PeerID); err != nil {
		ch.sendError(err.Error())
		return
	}
	code := domain.NormalizeCode(msg.RoomCode)
	rejoin := ch.joined() && ch.room == code && ch.peer == msg.PeerID
	if ch.joined() && !rejoin {
		ch.disconnect()
	}

	name := domain.DisplayName(msg.Name)
	ch.room, ch.peer = code, msg.PeerID
	ch.ctl.dir.Register(code, msg.PeerID, name, ch.conn)

	caps, err := ch.ctl.fwd.Join(ch.ctx, code, msg.PeerID)
	if err != nil {
		ch.log.Error().Err(err).Str("room", code.String()).Str("peer", string(msg.PeerID)).Msg("join")
		ch.ctl.dir.Remove(code, msg.PeerID, ch.conn)
		ch.room, ch.peer = "", ""
		ch.sendError("Failed to join")
		return
	}

	ch.log = ch.base.With().Str("room", code.String()).Str("peer", string(msg.PeerID)).Logger()
	ch.log.Info().Msg("join")
	ch.sendJSON(joinedMsg{
		Type:            "joined",
		RtpCapabilities: caps,
		Participants:    ch.ctl.dir.Participants(code, msg.PeerID),
	})
	if !rejoin {
		ch.broadcast(code, msg.PeerID, peerMsg{Type: "peerJoined", PeerID: msg.PeerID, Name: name})
	}
}

// disconnect releases everything the channel holds in its room. The socket
// directory is cleaned before peerLeft goes out so nobody can see a phantom
// participant, and media is torn down last.
func (ch *channel) disconnect() {
	if !ch.joined() {
		return
	}
	code, peer := ch.room, ch.peer
	ch.room, ch.peer = "", ""

	name, ok := ch.ctl.dir.Remove(code, peer, ch.conn)
	if !ok {
		// A newer connection took over this peer id; it owns the session now.
		ch.log.Info().Msg("superseded connection left")
		return
	}
	ch.broadcast(code, peer, peerMsg{Type: "peerLeft", PeerID: peer, Name: name})

	ch.ctl.fwd.RemovePeer(code, peer)
	ch.log.Info().Msg("peer left")
	ch.log = ch.base
}
