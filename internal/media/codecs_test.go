package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

func TestCodecMatches(t *testing.T) {
	opus := AudioCodecs()[0]

	tests := []struct {
		name  string
		codec domain.RtpCodecParameters
		want  bool
	}{
		{"exact", domain.RtpCodecParameters{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}, true},
		{"mime case", domain.RtpCodecParameters{MimeType: "AUDIO/OPUS", ClockRate: 48000, Channels: 2}, true},
		{"clock rate", domain.RtpCodecParameters{MimeType: "audio/opus", ClockRate: 16000, Channels: 2}, false},
		{"mono", domain.RtpCodecParameters{MimeType: "audio/opus", ClockRate: 48000}, false},
		{"other codec", domain.RtpCodecParameters{MimeType: "audio/PCMU", ClockRate: 8000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodecMatches(tt.codec, opus))
		})
	}
}

func TestCapabilitiesCopy(t *testing.T) {
	codecs := AudioCodecs()
	caps := Capabilities(codecs)
	codecs[0].ClockRate = 1

	assert.Equal(t, uint32(48000), caps.Codecs[0].ClockRate)
	assert.NotNil(t, caps.HeaderExtensions)
	assert.Equal(t, uint8(opusPayloadType), caps.Codecs[0].PreferredPayloadType)
}

func TestSupportsCodec_EmptyCaps(t *testing.T) {
	codec := toCodecParameters(AudioCodecs()[0])
	assert.True(t, SupportsCodec(codec, Capabilities(AudioCodecs())))
	assert.False(t, SupportsCodec(codec, domain.RtpCapabilities{}))
}

func TestDtlsRoleRoundTrip(t *testing.T) {
	for _, name := range []string{"client", "server", "auto"} {
		assert.Equal(t, name, dtlsRoleName(dtlsRole(name)))
	}
	assert.Equal(t, "auto", dtlsRoleName(dtlsRole("")))
}

func TestCandidateConversion(t *testing.T) {
	in := domain.IceCandidate{Foundation: "1", Priority: 100, Address: "10.0.0.1", Protocol: "udp", Port: 10001, Type: "host"}
	pc, err := toPionCandidate(in)
	assert.NoError(t, err)
	assert.Equal(t, in, fromPionCandidate(pc))

	_, err = toPionCandidate(domain.IceCandidate{Protocol: "sctp", Type: "host"})
	assert.Error(t, err)
}
