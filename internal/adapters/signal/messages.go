package signal

import "github.com/pixelligue/zvonizvonu/internal/domain"

// inbound is the union of every client message; Type selects which fields
// are meaningful.
type inbound struct {
	Type            string                  `json:"type"`
	RoomCode        string                  `json:"roomCode,omitempty"`
	PeerID          domain.PeerID           `json:"peerId,omitempty"`
	Name            string                  `json:"name,omitempty"`
	TransportID     string                  `json:"transportId,omitempty"`
	DtlsParameters  *domain.DtlsParameters  `json:"dtlsParameters,omitempty"`
	IceParameters   *domain.IceParameters   `json:"iceParameters,omitempty"`
	IceCandidates   []domain.IceCandidate   `json:"iceCandidates,omitempty"`
	Kind            domain.MediaKind        `json:"kind,omitempty"`
	RtpParameters   *domain.RtpParameters   `json:"rtpParameters,omitempty"`
	ProducerID      string                  `json:"producerId,omitempty"`
	RtpCapabilities *domain.RtpCapabilities `json:"rtpCapabilities,omitempty"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type joinedMsg struct {
	Type            string                 `json:"type"`
	RtpCapabilities domain.RtpCapabilities `json:"rtpCapabilities"`
	Participants    []domain.Participant   `json:"participants"`
}

type peerMsg struct {
	Type   string        `json:"type"`
	PeerID domain.PeerID `json:"peerId"`
	Name   string        `json:"name"`
}

type transportCreatedMsg struct {
	Type      string                `json:"type"`
	Transport *domain.TransportInfo `json:"transport"`
}

type transportConnectedMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

type producedMsg struct {
	Type       string `json:"type"`
	ProducerID string `json:"producerId"`
}

type newProducerMsg struct {
	Type       string        `json:"type"`
	PeerID     domain.PeerID `json:"peerId"`
	ProducerID string        `json:"producerId"`
	Name       string        `json:"name"`
}

type consumedMsg struct {
	Type     string               `json:"type"`
	Consumer *domain.ConsumerInfo `json:"consumer"`
}

type producersMsg struct {
	Type      string               `json:"type"`
	Producers []domain.ProducerRef `json:"producers"`
}

type typeOnly struct {
	Type string `json:"type"`
}
