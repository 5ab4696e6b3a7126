package core

import (
	"context"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// RoomSnapshot is a read-only view of a mesh room for APIs.
type RoomSnapshot struct {
	Code               domain.RoomCode      `json:"code"`
	HasHost            bool                 `json:"hasHost"`
	Peers              []domain.PeerID      `json:"peers"`
	Participants       []domain.Participant `json:"participants"`
	ScreenShareEnabled bool                 `json:"screenShareEnabled"`
	RecordingAllowed   []domain.PeerID      `json:"recordingAllowed"`
}

type RoomSettings struct {
	ScreenShareEnabled bool            `json:"screenShareEnabled"`
	RecordingAllowed   []domain.PeerID `json:"recordingAllowed"`
}

// MeshRooms is the mesh-room directory together with its admission rules.
// Every method on an unknown code reports not-found through its sentinel
// (false, nil) and has no side effects.
type MeshRooms interface {
	CreateRoom() (domain.RoomCode, error)
	GetRoom(code string) (RoomSnapshot, bool)
	Participants(code string) []domain.Participant
	SetHost(code string, peer domain.PeerID, name string) bool
	RequestJoin(code string, peer domain.PeerID, name string) bool
	Pending(code string) []domain.Participant
	ApproveJoin(code string, peer domain.PeerID) []domain.PeerID
	RejectJoin(code string, peer domain.PeerID) bool
	AdmissionState(code string, peer domain.PeerID) (domain.AdmissionState, bool)
	LeaveRoom(code string, peer domain.PeerID)
	SetScreenShare(code string, enabled bool) bool
	AllowRecording(code string, peer domain.PeerID) bool
	DisallowRecording(code string, peer domain.PeerID) bool
	Settings(code string) (RoomSettings, bool)
}

// Forwarding is the orchestrator API consumed by the signaling channel.
type Forwarding interface {
	Join(ctx context.Context, code domain.RoomCode, peer domain.PeerID) (domain.RtpCapabilities, error)
	RtpCapabilities(code domain.RoomCode) (domain.RtpCapabilities, bool)
	CreateTransport(ctx context.Context, code domain.RoomCode, peer domain.PeerID) (*domain.TransportInfo, error)
	ConnectTransport(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID string, remote domain.RemoteParameters) bool
	Produce(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID string, kind domain.MediaKind, params domain.RtpParameters) (string, error)
	Consume(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID, producerID string, caps domain.RtpCapabilities) (*domain.ConsumerInfo, error)
	OtherProducers(code domain.RoomCode, peer domain.PeerID) []domain.ProducerRef
	RemovePeer(code domain.RoomCode, peer domain.PeerID)
}
