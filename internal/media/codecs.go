package media

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

const opusPayloadType = 100

// AudioCodecs is the only codec profile routers advertise. There is no
// negotiation of alternatives.
func AudioCodecs() []domain.RtpCodecCapability {
	return []domain.RtpCodecCapability{
		{
			Kind:                 domain.MediaKindAudio,
			MimeType:             webrtc.MimeTypeOpus,
			PreferredPayloadType: opusPayloadType,
			ClockRate:            48000,
			Channels:             2,
			RtcpFeedback: []domain.RtcpFeedback{
				{Type: "transport-cc"},
			},
		},
	}
}

// Capabilities builds the router capabilities advertised to clients.
func Capabilities(codecs []domain.RtpCodecCapability) domain.RtpCapabilities {
	out := domain.RtpCapabilities{
		Codecs:           make([]domain.RtpCodecCapability, len(codecs)),
		HeaderExtensions: []domain.RtpHeaderExtension{},
	}
	copy(out.Codecs, codecs)
	return out
}

// CodecMatches reports whether a concrete codec is described by a capability.
func CodecMatches(codec domain.RtpCodecParameters, capability domain.RtpCodecCapability) bool {
	if !strings.EqualFold(codec.MimeType, capability.MimeType) {
		return false
	}
	if codec.ClockRate != capability.ClockRate {
		return false
	}
	return channelsOf(codec.Channels) == channelsOf(capability.Channels)
}

// SupportsCodec reports whether any capability in caps describes codec.
func SupportsCodec(codec domain.RtpCodecParameters, caps domain.RtpCapabilities) bool {
	for _, c := range caps.Codecs {
		if CodecMatches(codec, c) {
			return true
		}
	}
	return false
}

func channelsOf(ch uint16) uint16 {
	if ch == 0 {
		return 1
	}
	return ch
}

func toPionCodec(c domain.RtpCodecCapability) webrtc.RTPCodecParameters {
	fb := make([]webrtc.RTCPFeedback, 0, len(c.RtcpFeedback))
	for _, f := range c.RtcpFeedback {
		fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			RTCPFeedback: fb,
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

func toCodecParameters(c domain.RtpCodecCapability) domain.RtpCodecParameters {
	return domain.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  c.PreferredPayloadType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		RtcpFeedback: c.RtcpFeedback,
	}
}

func fromPionCandidate(c webrtc.ICECandidate) domain.IceCandidate {
	return domain.IceCandidate{
		Foundation: c.Foundation,
		Priority:   c.Priority,
		Address:    c.Address,
		Protocol:   c.Protocol.String(),
		Port:       c.Port,
		Type:       c.Typ.String(),
		TcpType:    c.TCPType,
	}
}

func toPionCandidate(c domain.IceCandidate) (webrtc.ICECandidate, error) {
	proto, err := webrtc.NewICEProtocol(c.Protocol)
	if err != nil {
		return webrtc.ICECandidate{}, err
	}
	typ, err := webrtc.NewICECandidateType(c.Type)
	if err != nil {
		return webrtc.ICECandidate{}, err
	}
	return webrtc.ICECandidate{
		Foundation: c.Foundation,
		Priority:   c.Priority,
		Address:    c.Address,
		Protocol:   proto,
		Port:       c.Port,
		Typ:        typ,
		TCPType:    c.TcpType,
	}, nil
}

func fromPionDtls(p webrtc.DTLSParameters) domain.DtlsParameters {
	out := domain.DtlsParameters{
		Role:         dtlsRoleName(p.Role),
		Fingerprints: make([]domain.DtlsFingerprint, 0, len(p.Fingerprints)),
	}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func toPionDtls(p domain.DtlsParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{
		Role:         dtlsRole(p.Role),
		Fingerprints: make([]webrtc.DTLSFingerprint, 0, len(p.Fingerprints)),
	}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func dtlsRole(name string) webrtc.DTLSRole {
	switch strings.ToLower(name) {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}

func dtlsRoleName(r webrtc.DTLSRole) string {
	switch r {
	case webrtc.DTLSRoleClient:
		return "client"
	case webrtc.DTLSRoleServer:
		return "server"
	default:
		return "auto"
	}
}
