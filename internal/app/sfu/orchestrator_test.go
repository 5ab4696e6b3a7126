package sfu

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelligue/zvonizvonu/internal/domain"
	"github.com/pixelligue/zvonizvonu/internal/media"
	"github.com/pixelligue/zvonizvonu/internal/media/mediatest"
)

func newTestOrchestrator(t *testing.T, workers int) (*Orchestrator, []*mediatest.Worker) {
	t.Helper()
	var fakes []*mediatest.Worker
	pool, err := media.NewPool(context.Background(), workers, mediatest.Factory(&fakes))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewOrchestrator(pool, media.AudioCodecs()), fakes
}

func opus(ssrc uint32) domain.RtpParameters {
	return domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2}},
		Encodings: []domain.RtpEncodingParameters{{Ssrc: ssrc}},
	}
}

// remote is a complete client handshake payload.
func remote() domain.RemoteParameters {
	return domain.RemoteParameters{
		DtlsParameters: domain.DtlsParameters{Role: "client", Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA"}}},
		IceParameters:  &domain.IceParameters{UsernameFragment: "ufrag", Password: "password"},
	}
}

// joinAndProduce joins peer and publishes one audio producer.
func joinAndProduce(t *testing.T, o *Orchestrator, code domain.RoomCode, peer domain.PeerID) (transportID, producerID string) {
	t.Helper()
	ctx := context.Background()
	_, err := o.Join(ctx, code, peer)
	require.NoError(t, err)
	info, err := o.CreateTransport(ctx, code, peer)
	require.NoError(t, err)
	require.True(t, o.ConnectTransport(ctx, code, peer, info.ID, remote()))
	pid, err := o.Produce(ctx, code, peer, info.ID, domain.MediaKindAudio, opus(1))
	require.NoError(t, err)
	return info.ID, pid
}

func TestGetOrCreateRoomIsStable(t *testing.T) {
	o, _ := newTestOrchestrator(t, 3)
	ctx := context.Background()

	first, err := o.GetOrCreateRoom(ctx, "X1")
	require.NoError(t, err)
	second, err := o.GetOrCreateRoom(ctx, "X1")
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, first.WorkerIndex(), second.WorkerIndex())

	other, err := o.GetOrCreateRoom(ctx, "X2")
	require.NoError(t, err)
	assert.NotEqual(t, first.WorkerIndex(), other.WorkerIndex(), "rooms are spread round-robin")
}

func TestGetOrCreateRoomConcurrent(t *testing.T) {
	o, fakes := newTestOrchestrator(t, 2)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := o.GetOrCreateRoom(context.Background(), "SAME")
			if assert.NoError(t, err) {
				ids[i] = r.ID()
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var created int32
	for _, w := range fakes {
		created += w.Routers.Load()
	}
	assert.Equal(t, int32(1), created)
}

func TestGetOrCreateRoomWorkerError(t *testing.T) {
	o, fakes := newTestOrchestrator(t, 1)
	boom := errors.New("boom")
	fakes[0].FailCreateRouter = boom

	_, err := o.Join(context.Background(), "X1", "a")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, -1, o.PeerCount("X1"))
}

func TestOtherProducers(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()

	_, pid := joinAndProduce(t, o, "R1", "A")
	_, err := o.Join(ctx, "R1", "B")
	require.NoError(t, err)

	got := o.OtherProducers("R1", "B")
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProducerRef{PeerID: "A", ProducerID: pid}, got[0])

	assert.Empty(t, o.OtherProducers("R1", "A"))
	assert.Empty(t, o.OtherProducers("NOPE", "A"))
}

func TestRemovePeerClearsMedia(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()

	_, pidA := joinAndProduce(t, o, "R1", "A")
	tB, pidB := joinAndProduce(t, o, "R1", "B")
	_, err := o.Consume(ctx, "R1", "B", tB, pidA, media.Capabilities(media.AudioCodecs()))
	require.NoError(t, err)

	recvA, err := o.CreateTransport(ctx, "R1", "A")
	require.NoError(t, err)
	_, err = o.Consume(ctx, "R1", "A", recvA.ID, pidB, media.Capabilities(media.AudioCodecs()))
	require.NoError(t, err)

	assert.Equal(t, PeerMedia{Transports: 1, Producers: 1, Consumers: 1}, o.PeerMedia("R1", "B"))
	assert.Equal(t, PeerMedia{Transports: 2, Producers: 1, Consumers: 1}, o.PeerMedia("R1", "A"))

	o.RemovePeer("R1", "B")
	assert.Equal(t, PeerMedia{}, o.PeerMedia("R1", "B"))
	assert.Equal(t, 1, o.PeerCount("R1"))
	assert.Empty(t, o.OtherProducers("R1", "A"))
	// A's consumer of B's producer went away with the producer.
	assert.Equal(t, PeerMedia{Transports: 2, Producers: 1, Consumers: 0}, o.PeerMedia("R1", "A"))

	o.RemovePeer("R1", "B")
	o.RemovePeer("NOPE", "B")
}

func TestPeerLeavesDuringCreateTransport(t *testing.T) {
	o, fakes := newTestOrchestrator(t, 1)
	ctx := context.Background()
	joinAndProduce(t, o, "R1", "B")
	_, err := o.Join(ctx, "R1", "A")
	require.NoError(t, err)

	var created *mediatest.Transport
	fakes[0].TransportCreated = func(tr *mediatest.Transport) {
		fakes[0].TransportCreated = nil
		created = tr
		o.RemovePeer("R1", "A")
	}
	_, err = o.CreateTransport(ctx, "R1", "A")
	assert.ErrorIs(t, err, ErrPeerNotFound)
	require.NotNil(t, created)
	assert.True(t, created.Closed())
	assert.Equal(t, PeerMedia{}, o.PeerMedia("R1", "A"))
	assert.Equal(t, 1, o.PeerCount("R1"))

	// A fresh session for the same peer must not inherit the stale transport.
	fakes[0].TransportCreated = func(tr *mediatest.Transport) {
		fakes[0].TransportCreated = nil
		created = tr
		o.RemovePeer("R1", "A")
		_, err := o.Join(ctx, "R1", "A")
		require.NoError(t, err)
	}
	_, err = o.Join(ctx, "R1", "A")
	require.NoError(t, err)
	_, err = o.CreateTransport(ctx, "R1", "A")
	assert.ErrorIs(t, err, ErrPeerNotFound)
	assert.True(t, created.Closed())
	assert.Equal(t, PeerMedia{}, o.PeerMedia("R1", "A"))
	assert.Equal(t, 2, o.PeerCount("R1"))
	assert.Equal(t, PeerMedia{Transports: 1, Producers: 1}, o.PeerMedia("R1", "B"))
}

func TestLastPeerClosesRoom(t *testing.T) {
	o, fakes := newTestOrchestrator(t, 1)
	joinAndProduce(t, o, "R1", "A")

	router, err := o.GetOrCreateRoom(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, 1, fakes[0].LiveRouters())

	o.RemovePeer("R1", "A")
	assert.True(t, router.Closed())
	assert.Equal(t, 0, fakes[0].LiveRouters())
	assert.Equal(t, -1, o.PeerCount("R1"))
	_, ok := o.RtpCapabilities("R1")
	assert.False(t, ok)
}

func TestConsumeCapabilityMismatchRegistersNothing(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()

	_, pid := joinAndProduce(t, o, "R1", "A")
	_, err := o.Join(ctx, "R1", "B")
	require.NoError(t, err)
	info, err := o.CreateTransport(ctx, "R1", "B")
	require.NoError(t, err)

	pcmu := domain.RtpCapabilities{Codecs: []domain.RtpCodecCapability{{Kind: domain.MediaKindAudio, MimeType: "audio/PCMU", ClockRate: 8000}}}
	c, err := o.Consume(ctx, "R1", "B", info.ID, pid, pcmu)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrCannotConsume)
	assert.Equal(t, 0, o.PeerMedia("R1", "B").Consumers)

	_, err = o.Consume(ctx, "R1", "B", info.ID, "missing", media.Capabilities(media.AudioCodecs()))
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestUnknownIDs(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()

	_, err := o.CreateTransport(ctx, "NOPE", "A")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = o.Join(ctx, "R1", "A")
	require.NoError(t, err)
	_, err = o.CreateTransport(ctx, "R1", "B")
	assert.ErrorIs(t, err, ErrPeerNotFound)

	assert.False(t, o.ConnectTransport(ctx, "R1", "A", "missing", remote()))
	_, err = o.Produce(ctx, "R1", "A", "missing", domain.MediaKindAudio, opus(1))
	assert.ErrorIs(t, err, ErrTransportNotFound)
	_, err = o.Consume(ctx, "R1", "A", "missing", "p", domain.RtpCapabilities{})
	assert.ErrorIs(t, err, ErrTransportNotFound)

	assert.False(t, o.AddPeer("NOPE", "A"))
}

func TestConnectTransportTwice(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()
	_, err := o.Join(ctx, "R1", "A")
	require.NoError(t, err)
	info, err := o.CreateTransport(ctx, "R1", "A")
	require.NoError(t, err)

	dtlsOnly := domain.RemoteParameters{DtlsParameters: remote().DtlsParameters}
	assert.False(t, o.ConnectTransport(ctx, "R1", "A", info.ID, dtlsOnly), "ice parameters are required")
	assert.True(t, o.ConnectTransport(ctx, "R1", "A", info.ID, remote()), "a refused connect can be retried")
	assert.False(t, o.ConnectTransport(ctx, "R1", "A", info.ID, remote()))
}

func TestProduceRejectsVideo(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()
	_, err := o.Join(ctx, "R1", "A")
	require.NoError(t, err)
	info, err := o.CreateTransport(ctx, "R1", "A")
	require.NoError(t, err)

	_, err = o.Produce(ctx, "R1", "A", info.ID, domain.MediaKindVideo, opus(1))
	assert.ErrorIs(t, err, media.ErrUnsupportedKind)
	assert.Equal(t, 0, o.PeerMedia("R1", "A").Producers)
}

func TestJoinIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, 1)
	ctx := context.Background()
	tid, _ := joinAndProduce(t, o, "R1", "A")

	caps, err := o.Join(ctx, "R1", "A")
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 1)
	assert.Equal(t, 1, o.PeerCount("R1"))
	assert.Equal(t, 1, o.PeerMedia("R1", "A").Transports, "rejoin keeps the session %s", tid)
}

func TestCloseTearsDownRooms(t *testing.T) {
	o, fakes := newTestOrchestrator(t, 2)
	joinAndProduce(t, o, "R1", "A")
	joinAndProduce(t, o, "R2", "B")

	o.Close()
	assert.Equal(t, -1, o.PeerCount("R1"))
	assert.Equal(t, -1, o.PeerCount("R2"))
	for _, w := range fakes {
		assert.Zero(t, w.LiveRouters())
	}
}
