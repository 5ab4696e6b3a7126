package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

const gatherTimeout = 5 * time.Second

// Transport wraps pion's ORTC ICE and DTLS transports. The server side is
// always the ICE-controlled agent.
type Transport struct {
	id       string
	router   *Router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	info     domain.TransportInfo
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// ready is closed once DTLS is up and SRTP can flow.
	ready chan struct{}

	mu        sync.Mutex
	connected bool
	closed    bool
	producers map[string]*Producer
	consumers map[string]*Consumer
	onClose   []func()
}

func newTransport(r *Router) (*Transport, error) {
	api := r.worker.api
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	done := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-done:
	case <-time.After(gatherTimeout):
		_ = gatherer.Close()
		return nil, ErrGatheringTimedOut
	}

	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	id := uuid.NewString()
	info := domain.TransportInfo{
		ID: id,
		IceParameters: domain.IceParameters{
			UsernameFragment: iceParams.UsernameFragment,
			Password:         iceParams.Password,
			IceLite:          iceParams.ICELite,
		},
		IceCandidates:  make([]domain.IceCandidate, 0, len(candidates)),
		DtlsParameters: fromPionDtls(dtlsParams),
	}
	for _, c := range candidates {
		info.IceCandidates = append(info.IceCandidates, fromPionCandidate(c))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		id:        id,
		router:    r,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		info:      info,
		log:       r.worker.log.With().Str("router", r.id).Str("transport", id).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}, nil
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Info() domain.TransportInfo { return t.info }

// Connect associates the client's parameters with the transport. The ICE and
// DTLS handshakes then complete in the background; producers and consumers
// start moving media once they do.
func (t *Transport) Connect(ctx context.Context, remote domain.RemoteParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	// The ICE agent cannot answer connectivity checks without the remote
	// credentials, so a DTLS-only connect is refused and may be retried.
	if remote.IceParameters == nil {
		t.mu.Unlock()
		return ErrNoRemoteCandidates
	}
	t.connected = true
	t.mu.Unlock()

	candidates := make([]webrtc.ICECandidate, 0, len(remote.IceCandidates))
	for _, c := range remote.IceCandidates {
		pc, err := toPionCandidate(c)
		if err != nil {
			t.log.Debug().Err(err).Str("candidate", c.Address).Msg("skip remote candidate")
			continue
		}
		candidates = append(candidates, pc)
	}
	iceParams := webrtc.ICEParameters{
		UsernameFragment: remote.IceParameters.UsernameFragment,
		Password:         remote.IceParameters.Password,
	}
	go t.start(iceParams, candidates, toPionDtls(remote.DtlsParameters))
	return nil
}

func (t *Transport) start(iceParams webrtc.ICEParameters, candidates []webrtc.ICECandidate, dtlsParams webrtc.DTLSParameters) {
	if len(candidates) > 0 {
		if err := t.ice.SetRemoteCandidates(candidates); err != nil {
			t.log.Warn().Err(err).Msg("set remote candidates")
		}
	}
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, iceParams, &role); err != nil {
		if t.ctx.Err() == nil {
			t.log.Warn().Err(err).Msg("ice start")
		}
		return
	}
	if err := t.dtls.Start(dtlsParams); err != nil {
		if t.ctx.Err() == nil {
			t.log.Warn().Err(err).Msg("dtls start")
		}
		return
	}
	close(t.ready)
	t.log.Info().Msg("transport connected")
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (core.Producer, error) {
	if kind != domain.MediaKindAudio {
		return nil, ErrUnsupportedKind
	}
	if len(params.Codecs) == 0 || !SupportsCodec(params.Codecs[0], t.router.caps) {
		return nil, ErrUnsupportedCodec
	}
	if len(params.Encodings) == 0 || params.Encodings[0].Ssrc == 0 {
		return nil, ErrMissingSsrc
	}

	var p *Producer
	err := t.router.worker.exec(ctx, func() error {
		p = newProducer(t, kind, params)
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrTransportClosed
		}
		t.producers[p.id] = p
		t.mu.Unlock()
		if err := t.router.addProducer(p); err != nil {
			t.removeProducer(p.id)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	go p.run()
	t.log.Info().Str("producer", p.id).Msg("producer created")
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps domain.RtpCapabilities) (core.Consumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, ErrProducerNotFound
	}
	if !SupportsCodec(p.codec, caps) {
		return nil, ErrCannotConsume
	}
	codec, ok := t.routerCodecFor(p.codec)
	if !ok {
		return nil, ErrUnsupportedCodec
	}

	var c *Consumer
	err := t.router.worker.exec(ctx, func() error {
		var err error
		if c, err = newConsumer(t, p, codec); err != nil {
			return err
		}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrTransportClosed
		}
		t.consumers[c.id] = c
		t.mu.Unlock()
		if !p.addConsumer(c) {
			t.removeConsumer(c.id)
			return ErrProducerNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	go c.run()
	t.log.Info().Str("consumer", c.id).Str("producer", p.id).Msg("consumer created")
	return c, nil
}

// routerCodecFor returns the router's own codec parameters for a producer
// codec, so consumers always use the payload type the router advertised.
func (t *Transport) routerCodecFor(codec domain.RtpCodecParameters) (domain.RtpCodecParameters, bool) {
	for _, c := range t.router.codecs {
		if CodecMatches(codec, c) {
			return toCodecParameters(c), true
		}
	}
	return domain.RtpCodecParameters{}, false
}

func (t *Transport) removeProducer(id string) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) removeConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if !t.closed {
		t.onClose = append(t.onClose, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// Close closes producers and consumers of the transport first, then the
// network side, then runs the close callbacks.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancel()
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.producers = make(map[string]*Producer)
	t.consumers = make(map[string]*Consumer)
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	for _, p := range producers {
		p.close(true)
	}
	for _, c := range consumers {
		c.close(closedByTransport)
	}

	if err := t.dtls.Stop(); err != nil {
		t.log.Debug().Err(err).Msg("dtls stop")
	}
	if err := t.ice.Stop(); err != nil {
		t.log.Debug().Err(err).Msg("ice stop")
	}
	if err := t.gatherer.Close(); err != nil {
		t.log.Debug().Err(err).Msg("gatherer close")
	}
	t.router.removeTransport(t.id)

	for _, fn := range callbacks {
		fn()
	}
	t.log.Info().Int("producers", len(producers)).Int("consumers", len(consumers)).Msg("transport closed")
}
