package media

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

const rembInterval = time.Second

// Producer receives one client audio stream and relays it to every consumer
// attached to it.
type Producer struct {
	id        string
	transport *Transport
	kind      domain.MediaKind
	params    domain.RtpParameters
	codec     domain.RtpCodecParameters
	ssrc      uint32
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.RWMutex
	closed           bool
	consumers        map[string]*Consumer
	onTransportClose []func()
}

func newProducer(t *Transport, kind domain.MediaKind, params domain.RtpParameters) *Producer {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(t.ctx)
	return &Producer{
		id:        id,
		transport: t,
		kind:      kind,
		params:    params,
		codec:     params.Codecs[0],
		ssrc:      params.Encodings[0].Ssrc,
		log:       t.log.With().Str("producer", id).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]*Consumer),
	}
}

func (p *Producer) ID() string { return p.id }

func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) RtpParameters() domain.RtpParameters { return p.params }

func (p *Producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	if !p.closed {
		p.onTransportClose = append(p.onTransportClose, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

func (p *Producer) addConsumer(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers[c.id] = c
	return true
}

func (p *Producer) removeConsumer(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

// run waits for the transport handshake, then reads RTP from the client until
// the producer closes.
func (p *Producer) run() {
	select {
	case <-p.ctx.Done():
		return
	case <-p.transport.ready:
	}

	receiver, err := p.transport.router.worker.api.NewRTPReceiver(webrtc.RTPCodecTypeAudio, p.transport.dtls)
	if err != nil {
		p.log.Error().Err(err).Msg("create rtp receiver")
		return
	}
	// Stopping the receiver is what unblocks ReadRTP below.
	go func() {
		<-p.ctx.Done()
		if err := receiver.Stop(); err != nil {
			p.log.Debug().Err(err).Msg("rtp receiver stop")
		}
	}()
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(p.ssrc),
				PayloadType: webrtc.PayloadType(p.codec.PayloadType),
			},
		}},
	})
	if err != nil {
		p.log.Error().Err(err).Msg("rtp receive")
		return
	}

	go p.remb()

	track := receiver.Track()
	p.log.Info().Uint32("ssrc", p.ssrc).Msg("relay loop started")
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if p.ctx.Err() == nil {
				p.log.Warn().Err(err).Msg("read rtp, stopping relay")
			}
			return
		}
		p.forward(pkt)
	}
}

func (p *Producer) forward(pkt *rtp.Packet) {
	p.mu.RLock()
	snapshot := maps.Clone(p.consumers)
	p.mu.RUnlock()

	for _, c := range snapshot {
		switch c.out.State() {
		case trackPending, trackDelete:
		case trackLive:
			if err := c.out.track.WriteRTP(pkt); err != nil {
				p.log.Warn().Err(err).Str("consumer", c.id).Msg("write rtp, dropping consumer track")
				c.out.markDelete()
			}
		}
	}
}

// remb caps the client's send rate to the configured incoming bitrate.
func (p *Producer) remb() {
	limit := p.transport.router.worker.cfg.MaxIncomingBitrate
	if limit <= 0 {
		return
	}
	ticker := time.NewTicker(rembInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			pkt := &rtcp.ReceiverEstimatedMaximumBitrate{
				Bitrate: float32(limit),
				SSRCs:   []uint32{p.ssrc},
			}
			if _, err := p.transport.dtls.WriteRTCP([]rtcp.Packet{pkt}); err != nil {
				p.log.Debug().Err(err).Msg("write remb")
			}
		}
	}
}

func (p *Producer) Close() { p.close(false) }

// close detaches the producer from its router and closes its consumers.
// When the owning transport is closing, the transport-close callbacks run.
func (p *Producer) close(fromTransport bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = make(map[string]*Consumer)
	callbacks := p.onTransportClose
	p.onTransportClose = nil
	p.mu.Unlock()

	p.transport.router.removeProducer(p.id)
	if !fromTransport {
		p.transport.removeProducer(p.id)
	}
	for _, c := range consumers {
		c.close(closedByProducer)
	}
	if fromTransport {
		for _, fn := range callbacks {
			fn()
		}
	}
	p.log.Info().Int("consumers", len(consumers)).Bool("transport_closed", fromTransport).Msg("producer closed")
}
