package mesh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

func fixedCodes(codes ...domain.RoomCode) func() (domain.RoomCode, error) {
	i := 0
	return func() (domain.RoomCode, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestAdmissionScenario(t *testing.T) {
	g := NewRegistry()
	g.newCode = fixedCodes("AB12C3")

	code, err := g.CreateRoom()
	require.NoError(t, err)
	require.Equal(t, domain.RoomCode("AB12C3"), code)

	require.True(t, g.SetHost("ab12c3", "h1", "Host"))
	snap, ok := g.GetRoom("AB12C3")
	require.True(t, ok)
	assert.True(t, snap.HasHost)
	assert.Equal(t, []domain.PeerID{"h1"}, snap.Peers)
	assert.Equal(t, []domain.PeerID{"h1"}, snap.RecordingAllowed)

	require.True(t, g.RequestJoin(code.String(), "p1", "Alice"))
	assert.Equal(t, []domain.Participant{{PeerID: "p1", Name: "Alice"}}, g.Pending(code.String()))

	peers := g.ApproveJoin(code.String(), "p1")
	assert.Equal(t, []domain.PeerID{"h1", "p1"}, peers)
	assert.Empty(t, g.Pending(code.String()))
	assert.Equal(t, []domain.Participant{
		{PeerID: "h1", Name: "Host"},
		{PeerID: "p1", Name: "Alice"},
	}, g.Participants(code.String()))
}

func TestAdmissionState(t *testing.T) {
	g := NewRegistry()
	code, err := g.CreateRoom()
	require.NoError(t, err)
	room := code.String()

	state := func(peer domain.PeerID) domain.AdmissionState {
		t.Helper()
		s, ok := g.AdmissionState(room, peer)
		require.True(t, ok)
		return s
	}

	assert.Equal(t, domain.AdmissionNone, state("p1"))
	g.RequestJoin(room, "p1", "Alice")
	assert.Equal(t, domain.AdmissionPending, state("p1"))
	g.ApproveJoin(room, "p1")
	assert.Equal(t, domain.AdmissionActive, state("p1"))

	g.RequestJoin(room, "p2", "Bob")
	g.RejectJoin(room, "p2")
	assert.Equal(t, domain.AdmissionNone, state("p2"))

	g.SetHost(room, "h1", "Host")
	assert.Equal(t, domain.AdmissionActive, state("h1"))

	g.LeaveRoom(room, "p1")
	assert.Equal(t, domain.AdmissionNone, state("p1"))

	s, ok := g.AdmissionState("ZZZZZZ", "p1")
	assert.False(t, ok)
	assert.Equal(t, domain.AdmissionNone, s)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	g := NewRegistry()
	code, err := g.CreateRoom()
	require.NoError(t, err)

	for _, variant := range []string{code.String(), strings.ToLower(code.String()), " " + code.String() + " "} {
		snap, ok := g.GetRoom(variant)
		require.True(t, ok, variant)
		assert.Equal(t, code, snap.Code)
	}
}

func TestApproveJoinIdempotent(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()
	g.SetHost(code.String(), "h1", "")
	g.RequestJoin(code.String(), "p1", "Alice")

	first := g.ApproveJoin(code.String(), "p1")
	second := g.ApproveJoin(code.String(), "p1")
	assert.Equal(t, first, second)
	assert.Empty(t, g.Pending(code.String()))
}

func TestLeaveRoom(t *testing.T) {
	t.Run("host leave destroys room", func(t *testing.T) {
		g := NewRegistry()
		code, _ := g.CreateRoom()
		g.SetHost(code.String(), "h1", "")
		g.ApproveJoin(code.String(), "p1")
		g.ApproveJoin(code.String(), "p2")

		g.LeaveRoom(code.String(), "h1")
		_, ok := g.GetRoom(code.String())
		assert.False(t, ok)
	})

	t.Run("non-host leave keeps room", func(t *testing.T) {
		g := NewRegistry()
		code, _ := g.CreateRoom()
		g.SetHost(code.String(), "h1", "")
		g.ApproveJoin(code.String(), "p1")
		g.AllowRecording(code.String(), "p1")

		g.LeaveRoom(code.String(), "p1")
		snap, ok := g.GetRoom(code.String())
		require.True(t, ok)
		assert.Equal(t, []domain.PeerID{"h1"}, snap.Peers)
		assert.Equal(t, []domain.PeerID{"h1"}, snap.RecordingAllowed)
	})

	t.Run("last peer leave destroys room", func(t *testing.T) {
		g := NewRegistry()
		code, _ := g.CreateRoom()
		g.ApproveJoin(code.String(), "p1")

		g.LeaveRoom(code.String(), "p1")
		_, ok := g.GetRoom(code.String())
		assert.False(t, ok)
	})

	t.Run("pending peer leave", func(t *testing.T) {
		g := NewRegistry()
		code, _ := g.CreateRoom()
		g.SetHost(code.String(), "h1", "")
		g.RequestJoin(code.String(), "p1", "Alice")

		g.LeaveRoom(code.String(), "p1")
		assert.Empty(t, g.Pending(code.String()))
	})
}

func TestRejectJoin(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()
	g.SetHost(code.String(), "h1", "")
	g.RequestJoin(code.String(), "p1", "Alice")

	assert.True(t, g.RejectJoin(code.String(), "p1"))
	assert.Empty(t, g.Pending(code.String()))
	snap, _ := g.GetRoom(code.String())
	assert.Equal(t, []domain.PeerID{"h1"}, snap.Peers)
}

func TestRecordingPermissions(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()
	g.SetHost(code.String(), "h1", "")
	g.ApproveJoin(code.String(), "p1")

	require.True(t, g.AllowRecording(code.String(), "p1"))
	require.True(t, g.AllowRecording(code.String(), "p1"))
	s, ok := g.Settings(code.String())
	require.True(t, ok)
	assert.Equal(t, []domain.PeerID{"h1", "p1"}, s.RecordingAllowed)

	assert.True(t, g.DisallowRecording(code.String(), "h1"))
	assert.True(t, g.DisallowRecording(code.String(), "p1"))
	s, _ = g.Settings(code.String())
	assert.Equal(t, []domain.PeerID{"h1"}, s.RecordingAllowed)
}

func TestScreenShare(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()

	s, _ := g.Settings(code.String())
	assert.False(t, s.ScreenShareEnabled)
	require.True(t, g.SetScreenShare(code.String(), true))
	s, _ = g.Settings(code.String())
	assert.True(t, s.ScreenShareEnabled)
}

func TestUnknownRoom(t *testing.T) {
	g := NewRegistry()
	const code = "ZZZZZZ"

	_, ok := g.GetRoom(code)
	assert.False(t, ok)
	assert.False(t, g.SetHost(code, "h1", ""))
	assert.False(t, g.RequestJoin(code, "p1", "Alice"))
	assert.Nil(t, g.ApproveJoin(code, "p1"))
	assert.False(t, g.RejectJoin(code, "p1"))
	assert.False(t, g.SetScreenShare(code, true))
	assert.False(t, g.AllowRecording(code, "p1"))
	assert.False(t, g.DisallowRecording(code, "p1"))
	_, ok = g.Settings(code)
	assert.False(t, ok)
	assert.Empty(t, g.Pending(code))
	assert.Empty(t, g.Participants(code))
	g.LeaveRoom(code, "p1")
	_, ok = g.GetRoom(code)
	assert.False(t, ok)
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	g := NewRegistry()
	g.newCode = fixedCodes("AAAAAA", "AAAAAA", "BBBBBB")

	first, err := g.CreateRoom()
	require.NoError(t, err)
	second, err := g.CreateRoom()
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCode("AAAAAA"), first)
	assert.Equal(t, domain.RoomCode("BBBBBB"), second)

	g.newCode = fixedCodes("AAAAAA")
	_, err = g.CreateRoom()
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestSetHostLastCallerWins(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()
	g.SetHost(code.String(), "h1", "")
	g.SetHost(code.String(), "h2", "")

	g.LeaveRoom(code.String(), "h1")
	snap, ok := g.GetRoom(code.String())
	require.True(t, ok, "the previous host is a regular peer now")
	assert.Equal(t, []domain.PeerID{"h2"}, snap.Peers)

	g.LeaveRoom(code.String(), "h2")
	_, ok = g.GetRoom(code.String())
	assert.False(t, ok)
}

func TestDefaultDisplayName(t *testing.T) {
	g := NewRegistry()
	code, _ := g.CreateRoom()
	g.SetHost(code.String(), "h1", "")
	g.RequestJoin(code.String(), "p1", "   ")

	assert.Equal(t, domain.DefaultDisplayName, g.Participants(code.String())[0].Name)
	assert.Equal(t, domain.DefaultDisplayName, g.Pending(code.String())[0].Name)
}
