// Package mediatest provides an in-memory media engine with the same
// ownership and close semantics as the pion-backed one, for tests that do
// not need real network transports.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
	"github.com/pixelligue/zvonizvonu/internal/media"
)

var ErrDead = errors.New("fake worker is dead")

// Worker is a fake core.Worker. Counters let tests assert how many routers
// it has built.
type Worker struct {
	idx     int
	died    chan error
	dead    atomic.Bool
	Routers atomic.Int32
	// FailCreateRouter makes the next CreateRouter calls return this error.
	FailCreateRouter error
	// TransportCreated, when set, runs after a transport is built and before
	// CreateTransport returns it. No engine lock is held.
	TransportCreated func(*Transport)

	mu   sync.Mutex
	live map[string]*Router
}

func NewWorker(idx int) *Worker {
	return &Worker{idx: idx, died: make(chan error, 1), live: make(map[string]*Router)}
}

// Factory adapts NewWorker to media.WorkerFactory.
func Factory(workers *[]*Worker) media.WorkerFactory {
	var mu sync.Mutex
	return func(idx int) (core.Worker, error) {
		w := NewWorker(idx)
		mu.Lock()
		*workers = append(*workers, w)
		mu.Unlock()
		return w, nil
	}
}

func (w *Worker) Index() int { return w.idx }

func (w *Worker) Died() <-chan error { return w.died }

// Kill simulates an unexpected worker termination.
func (w *Worker) Kill() {
	if w.dead.CompareAndSwap(false, true) {
		w.died <- fmt.Errorf("%w: worker %d", media.ErrWorkerDied, w.idx)
	}
}

// LiveRouters returns how many routers of this worker are still open.
func (w *Worker) LiveRouters() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.live)
}

func (w *Worker) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (core.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.dead.Load() {
		return nil, ErrDead
	}
	if w.FailCreateRouter != nil {
		return nil, w.FailCreateRouter
	}
	r := &Router{
		id:         uuid.NewString(),
		worker:     w,
		caps:       media.Capabilities(codecs),
		producers:  make(map[string]*Producer),
		transports: make(map[string]*Transport),
	}
	w.mu.Lock()
	w.live[r.id] = r
	w.mu.Unlock()
	w.Routers.Add(1)
	return r, nil
}

func (w *Worker) Close() {
	w.dead.Store(true)
	w.mu.Lock()
	routers := make([]*Router, 0, len(w.live))
	for _, r := range w.live {
		routers = append(routers, r)
	}
	w.mu.Unlock()
	for _, r := range routers {
		r.Close()
	}
}

type Router struct {
	id     string
	worker *Worker
	caps   domain.RtpCapabilities

	mu         sync.Mutex
	closed     bool
	producers  map[string]*Producer
	transports map[string]*Transport
}

func (r *Router) ID() string { return r.id }

func (r *Router) WorkerIndex() int { return r.worker.idx }

func (r *Router) RtpCapabilities() domain.RtpCapabilities { return r.caps }

func (r *Router) CreateTransport(ctx context.Context) (core.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, media.ErrRouterClosed
	}
	id := uuid.NewString()
	t := &Transport{
		id:        id,
		router:    r,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
		info: domain.TransportInfo{
			ID:             id,
			IceParameters:  domain.IceParameters{UsernameFragment: id[:8], Password: id},
			IceCandidates:  []domain.IceCandidate{{Foundation: "1", Address: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host"}},
			DtlsParameters: domain.DtlsParameters{Role: "auto", Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "00"}}},
		},
	}
	r.transports[id] = t
	r.mu.Unlock()

	if hook := r.worker.TransportCreated; hook != nil {
		hook(t)
	}
	return t, nil
}

func (r *Router) CanConsume(producerID string, caps domain.RtpCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	return ok && media.SupportsCodec(p.params.Codecs[0], caps)
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

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
	r.worker.mu.Lock()
	delete(r.worker.live, r.id)
	r.worker.mu.Unlock()
}

type Transport struct {
	id     string
	router *Router
	info   domain.TransportInfo

	mu        sync.Mutex
	connected bool
	closed    bool
	producers map[string]*Producer
	consumers map[string]*Consumer
	onClose   []func()
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Info() domain.TransportInfo { return t.info }

// Connected reports whether Connect succeeded.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Connect(_ context.Context, remote domain.RemoteParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return media.ErrTransportClosed
	}
	if t.connected {
		return media.ErrAlreadyConnected
	}
	if remote.IceParameters == nil {
		return media.ErrNoRemoteCandidates
	}
	t.connected = true
	return nil
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, params domain.RtpParameters) (core.Producer, error) {
	if kind != domain.MediaKindAudio {
		return nil, media.ErrUnsupportedKind
	}
	if len(params.Codecs) == 0 || !media.SupportsCodec(params.Codecs[0], t.router.caps) {
		return nil, media.ErrUnsupportedCodec
	}
	p := &Producer{id: uuid.NewString(), transport: t, kind: kind, params: params, consumers: make(map[string]*Consumer)}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, media.ErrTransportClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID string, caps domain.RtpCapabilities) (core.Consumer, error) {
	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, media.ErrProducerNotFound
	}
	if !media.SupportsCodec(p.params.Codecs[0], caps) {
		return nil, media.ErrCannotConsume
	}
	c := &Consumer{
		id:        uuid.NewString(),
		transport: t,
		producer:  p,
		params: domain.RtpParameters{
			Codecs:    []domain.RtpCodecParameters{p.params.Codecs[0]},
			Encodings: []domain.RtpEncodingParameters{{Ssrc: 1234}},
		},
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, media.ErrTransportClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, media.ErrProducerNotFound
	}
	p.consumers[c.id] = c
	p.mu.Unlock()
	return c, nil
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

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := t.producers
	consumers := t.consumers
	callbacks := t.onClose
	t.producers, t.consumers, t.onClose = map[string]*Producer{}, map[string]*Consumer{}, nil
	t.mu.Unlock()

	for _, p := range producers {
		p.close(true)
	}
	for _, c := range consumers {
		c.close(byTransport)
	}
	t.router.mu.Lock()
	delete(t.router.transports, t.id)
	t.router.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

type Producer struct {
	id        string
	transport *Transport
	kind      domain.MediaKind
	params    domain.RtpParameters

	mu               sync.Mutex
	closed           bool
	consumers        map[string]*Consumer
	onTransportClose []func()
}

func (p *Producer) ID() string { return p.id }

func (p *Producer) Kind() domain.MediaKind { return p.kind }

func (p *Producer) RtpParameters() domain.RtpParameters { return p.params }

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

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

func (p *Producer) Close() { p.close(false) }

func (p *Producer) close(fromTransport bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := p.consumers
	callbacks := p.onTransportClose
	p.consumers, p.onTransportClose = map[string]*Consumer{}, nil
	p.mu.Unlock()

	r := p.transport.router
	r.mu.Lock()
	delete(r.producers, p.id)
	r.mu.Unlock()
	if !fromTransport {
		p.transport.mu.Lock()
		delete(p.transport.producers, p.id)
		p.transport.mu.Unlock()
	}
	for _, c := range consumers {
		c.close(byProducer)
	}
	if fromTransport {
		for _, fn := range callbacks {
			fn()
		}
	}
}

type reason int

const (
	byLocal reason = iota
	byTransport
	byProducer
)

type Consumer struct {
	id        string
	transport *Transport
	producer  *Producer
	params    domain.RtpParameters

	mu               sync.Mutex
	closed           bool
	onTransportClose []func()
	onProducerClose  []func()
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) ProducerID() string { return c.producer.id }

func (c *Consumer) Kind() domain.MediaKind { return c.producer.kind }

func (c *Consumer) RtpParameters() domain.RtpParameters { return c.params }

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) OnTransportClose(fn func()) { c.on(&c.onTransportClose, fn) }

func (c *Consumer) OnProducerClose(fn func()) { c.on(&c.onProducerClose, fn) }

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

func (c *Consumer) Close() { c.close(byLocal) }

func (c *Consumer) close(why reason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var callbacks []func()
	switch why {
	case byTransport:
		callbacks = c.onTransportClose
	case byProducer:
		callbacks = c.onProducerClose
	}
	c.onTransportClose, c.onProducerClose = nil, nil
	c.mu.Unlock()

	if why != byProducer {
		c.producer.mu.Lock()
		delete(c.producer.consumers, c.id)
		c.producer.mu.Unlock()
	}
	if why != byTransport {
		c.transport.mu.Lock()
		delete(c.transport.consumers, c.id)
		c.transport.mu.Unlock()
	}
	for _, fn := range callbacks {
		fn()
	}
}
