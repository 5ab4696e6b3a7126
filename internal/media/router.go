package media

import (
	"context"
	"sync"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// Router is the routing context of one room. Producers are registered here
// so any transport of the room can consume them.
type Router struct {
	id     string
	worker *Worker
	codecs []domain.RtpCodecCapability
	caps   domain.RtpCapabilities

	mu         sync.RWMutex
	closed     bool
	producers  map[string]*Producer
	transports map[string]*Transport
}

func (r *Router) ID() string { return r.id }

func (r *Router) WorkerIndex() int { return r.worker.idx }

func (r *Router) RtpCapabilities() domain.RtpCapabilities { return r.caps }

func (r *Router) CreateTransport(ctx context.Context) (core.Transport, error) {
	if r.Closed() {
		return nil, ErrRouterClosed
	}
	var t *Transport
	err := r.worker.exec(ctx, func() error {
		var err error
		t, err = newTransport(r)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()

	r.worker.log.Debug().Str("router", r.id).Str("transport", t.id).Msg("transport created")
	return t, nil
}

func (r *Router) CanConsume(producerID string, caps domain.RtpCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok {
		return false
	}
	return SupportsCodec(p.codec, caps)
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) addProducer(p *Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	r.producers[p.id] = p
	return nil
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *Router) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close closes every transport of the router, which in turn closes all
// producers and consumers.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.worker.forgetRouter(r.id)
	r.worker.log.Info().Str("router", r.id).Msg("router closed")
}
