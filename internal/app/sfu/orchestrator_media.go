package sfu

import (
	"cmp"
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

func (o *Orchestrator) CreateTransport(ctx context.Context, code domain.RoomCode, peer domain.PeerID) (*domain.TransportInfo, error) {
	o.mu.Lock()
	r, sess, err := o.session(code, peer)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	t, err := r.router.CreateTransport(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if _, current, err := o.session(code, peer); err != nil || current != sess {
		o.mu.Unlock()
		// The peer left while the transport was being set up.
		t.Close()
		return nil, ErrPeerNotFound
	}
	sess.transports[t.ID()] = t
	o.mu.Unlock()

	id := t.ID()
	t.OnClose(func() {
		o.mu.Lock()
		delete(sess.transports, id)
		o.mu.Unlock()
	})

	info := t.Info()
	log.Debug().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Str("transport", id).Msg("transport created")
	return &info, nil
}

func (o *Orchestrator) transport(code domain.RoomCode, peer domain.PeerID, transportID string) (*room, *peerSession, core.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, sess, err := o.session(code, peer)
	if err != nil {
		return nil, nil, nil, err
	}
	t, ok := sess.transports[transportID]
	if !ok {
		return nil, nil, nil, ErrTransportNotFound
	}
	return r, sess, t, nil
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID string, remote domain.RemoteParameters) bool {
	_, _, t, err := o.transport(code, peer, transportID)
	if err != nil {
		return false
	}
	if err := t.Connect(ctx, remote); err != nil {
		log.Warn().Err(err).Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Str("transport", transportID).Msg("connect transport")
		return false
	}
	return true
}

func (o *Orchestrator) Produce(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID string, kind domain.MediaKind, params domain.RtpParameters) (string, error) {
	_, sess, t, err := o.transport(code, peer, transportID)
	if err != nil {
		return "", err
	}
	p, err := t.Produce(ctx, kind, params)
	if err != nil {
		return "", err
	}

	id := p.ID()
	o.mu.Lock()
	sess.producers[id] = p
	o.mu.Unlock()
	p.OnTransportClose(func() {
		o.mu.Lock()
		delete(sess.producers, id)
		o.mu.Unlock()
	})

	log.Info().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Str("producer", id).Msg("producer created")
	return id, nil
}

// Consume subscribes peer to producerID. Nothing is registered when the
// receiver's capabilities cannot decode the producer.
func (o *Orchestrator) Consume(ctx context.Context, code domain.RoomCode, peer domain.PeerID, transportID, producerID string, caps domain.RtpCapabilities) (*domain.ConsumerInfo, error) {
	r, sess, t, err := o.transport(code, peer, transportID)
	if err != nil {
		return nil, err
	}
	if !o.hasProducer(code, producerID) {
		return nil, ErrProducerNotFound
	}
	if !r.router.CanConsume(producerID, caps) {
		log.Warn().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Str("producer", producerID).Msg("receiver capabilities cannot consume producer")
		return nil, ErrCannotConsume
	}

	c, err := t.Consume(ctx, producerID, caps)
	if err != nil {
		return nil, err
	}

	id := c.ID()
	o.mu.Lock()
	sess.consumers[id] = c
	o.mu.Unlock()
	forget := func() {
		o.mu.Lock()
		delete(sess.consumers, id)
		o.mu.Unlock()
	}
	c.OnTransportClose(forget)
	c.OnProducerClose(forget)

	log.Debug().Str("module", "sfu").Str("room", code.String()).Str("peer", string(peer)).Str("consumer", id).Str("producer", producerID).Msg("consumer created")
	return &domain.ConsumerInfo{
		ID:            id,
		ProducerID:    c.ProducerID(),
		Kind:          c.Kind(),
		RtpParameters: c.RtpParameters(),
	}, nil
}

func (o *Orchestrator) hasProducer(code domain.RoomCode, producerID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.rooms[code]
	if !ok {
		return false
	}
	for _, sess := range r.peers {
		if _, ok := sess.producers[producerID]; ok {
			return true
		}
	}
	return false
}

// OtherProducers lists the producers of every peer except peer, used by late
// joiners to catch up.
func (o *Orchestrator) OtherProducers(code domain.RoomCode, peer domain.PeerID) []domain.ProducerRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := []domain.ProducerRef{}
	r, ok := o.rooms[code]
	if !ok {
		return out
	}
	for id, sess := range r.peers {
		if id == peer {
			continue
		}
		for pid := range sess.producers {
			out = append(out, domain.ProducerRef{PeerID: id, ProducerID: pid})
		}
	}
	slices.SortFunc(out, func(a, b domain.ProducerRef) int {
		if c := cmp.Compare(a.PeerID, b.PeerID); c != 0 {
			return c
		}
		return cmp.Compare(a.ProducerID, b.ProducerID)
	})
	return out
}

// PeerMedia counts what peer currently has registered.
type PeerMedia struct {
	Transports int
	Producers  int
	Consumers  int
}

func (o *Orchestrator) PeerMedia(code domain.RoomCode, peer domain.PeerID) PeerMedia {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, sess, err := o.session(code, peer)
	if err != nil {
		return PeerMedia{}
	}
	return PeerMedia{
		Transports: len(sess.transports),
		Producers:  len(sess.producers),
		Consumers:  len(sess.consumers),
	}
}
