package media

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/pixelligue/zvonizvonu/internal/domain"
)

type closeReason int

const (
	closedLocally closeReason = iota
	closedByTransport
	closedByProducer
)

// Consumer sends one producer's stream to a receiving client.
type Consumer struct {
	id        string
	transport *Transport
	producer  *Producer
	kind      domain.MediaKind
	codec     domain.RtpCodecParameters
	ssrc      uint32
	params    domain.RtpParameters
	out       *outTrack
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	closed           bool
	onTransportClose []func()
	onProducerClose  []func()
}

func newConsumer(t *Transport, p *Producer, codec domain.RtpCodecParameters) (*Consumer, error) {
	id := uuid.NewString()
	ssrc := rand.Uint32()
	for ssrc == 0 || ssrc == p.ssrc {
		ssrc = rand.Uint32()
	}
	// The id doubles as the stream id the client sees.
	track, err := webrtc.NewTrackLocalStaticRTP(toPionCodec(domain.RtpCodecCapability{
		Kind:         p.kind,
		MimeType:     codec.MimeType,
		ClockRate:    codec.ClockRate,
		Channels:     codec.Channels,
		RtcpFeedback: codec.RtcpFeedback,
	}).RTPCodecCapability, id, p.id)
	if err != nil {
		return nil, err
	}

	cname := id
	if p.params.Rtcp != nil && p.params.Rtcp.Cname != "" {
		cname = p.params.Rtcp.Cname
	}
	ctx, cancel := context.WithCancel(t.ctx)
	return &Consumer{
		id:        id,
		transport: t,
		producer:  p,
		kind:      p.kind,
		codec:     codec,
		ssrc:      ssrc,
		params: domain.RtpParameters{
			Mid:       id[:8],
			Codecs:    []domain.RtpCodecParameters{codec},
			Encodings: []domain.RtpEncodingParameters{{Ssrc: ssrc}},
			Rtcp:      &domain.RtcpParameters{Cname: cname, ReducedSize: true},
		},
		out:    newOutTrack(track),
		log:    t.log.With().Str("consumer", id).Str("producer", p.id).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) ProducerID() string { return c.producer.id }

func (c *Consumer) Kind() domain.MediaKind { return c.kind }

func (c *Consumer) RtpParameters() domain.RtpParameters { return c.params }

func (c *Consumer) OnTransportClose(fn func()) { c.on(&c.onTransportClose, fn) }

func (c *Consumer) OnProducerClose(fn func()) { c.on(&c.onProducerClose, fn) }

// on registers fn, or runs it right away when the consumer is already gone.
func (c *Consumer) on(list *[]func(), fn func()) {
	c.mu.Lock()
	if !c.closed {
		*list = append(*list, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// run binds an RTP sender once the transport handshake completes and drains
// the RTCP the client sends back.
func (c *Consumer) run() {
	select {
	case <-c.ctx.Done():
		return
	case <-c.transport.ready:
	}

	sender, err := c.transport.router.worker.api.NewRTPSender(c.out.track, c.transport.dtls)
	if err != nil {
		c.log.Error().Err(err).Msg("create rtp sender")
		return
	}
	err = sender.Send(webrtc.RTPSendParameters{
		Encodings: []webrtc.RTPEncodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(c.ssrc),
				PayloadType: webrtc.PayloadType(c.codec.PayloadType),
			},
		}},
	})
	if err != nil {
		c.log.Error().Err(err).Msg("rtp send")
		return
	}
	c.out.markLive()

	go func() {
		<-c.ctx.Done()
		if err := sender.Stop(); err != nil {
			c.log.Debug().Err(err).Msg("rtp sender stop")
		}
	}()
	for {
		if _, _, err := sender.ReadRTCP(); err != nil {
			return
		}
	}
}

func (c *Consumer) Close() { c.close(closedLocally) }

func (c *Consumer) close(reason closeReason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.out.markDelete()
	var callbacks []func()
	switch reason {
	case closedByTransport:
		callbacks = c.onTransportClose
	case closedByProducer:
		callbacks = c.onProducerClose
	}
	c.onTransportClose = nil
	c.onProducerClose = nil
	c.mu.Unlock()

	if reason != closedByProducer {
		c.producer.removeConsumer(c.id)
	}
	if reason != closedByTransport {
		c.transport.removeConsumer(c.id)
	}
	for _, fn := range callbacks {
		fn()
	}
	c.log.Debug().Int("reason", int(reason)).Msg("consumer closed")
}
