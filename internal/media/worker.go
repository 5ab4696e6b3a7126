package media

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/core"
	"github.com/pixelligue/zvonizvonu/internal/domain"
)

// Worker is a pion-backed media worker. Router and transport setup run as
// tasks on the worker's own goroutine; a panic inside a task kills the worker
// and is reported on Died.
type Worker struct {
	idx int
	cfg Config
	api *webrtc.API
	log zerolog.Logger

	tasks   chan func()
	quit    chan struct{}
	stopped chan struct{}
	died    chan error
	crashed atomic.Bool
	once    sync.Once

	mu      sync.Mutex
	routers map[string]*Router
}

func NewWorker(idx int, cfg Config, minPort, maxPort uint16) (*Worker, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range AudioCodecs() {
		if err := m.RegisterCodec(toPionCodec(c), webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	s := webrtc.SettingEngine{}
	s.LoggerFactory = newLoggerFactory(idx, cfg.LogLevel)
	if minPort > 0 && maxPort >= minPort {
		if err := s.SetEphemeralUDPPortRange(minPort, maxPort); err != nil {
			return nil, fmt.Errorf("port range %d-%d: %w", minPort, maxPort, err)
		}
	}
	if cfg.AnnouncedIP != "" {
		s.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if ip := net.ParseIP(cfg.ListenIP); ip != nil && !ip.IsUnspecified() {
		s.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
	}

	w := &Worker{
		idx:     idx,
		cfg:     cfg,
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(s)),
		log:     log.With().Str("module", "media").Int("worker", idx).Logger(),
		tasks:   make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		died:    make(chan error, 1),
		routers: make(map[string]*Router),
	}
	go w.run()
	w.log.Info().Uint16("min_port", minPort).Uint16("max_port", maxPort).Msg("worker started")
	return w, nil
}

func (w *Worker) run() {
	defer close(w.stopped)
	defer func() {
		if r := recover(); r != nil {
			w.crashed.Store(true)
			w.died <- fmt.Errorf("%w: worker %d: %v", ErrWorkerDied, w.idx, r)
		}
	}()
	for {
		select {
		case <-w.quit:
			return
		case task := <-w.tasks:
			task()
		}
	}
}

// exec runs fn on the worker goroutine and waits for it. ctx only bounds the
// wait for a free slot; a started task always runs to completion.
func (w *Worker) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case w.tasks <- func() { errc <- fn() }:
	case <-w.stopped:
		return w.stoppedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-w.stopped:
		return w.stoppedErr()
	}
}

func (w *Worker) stoppedErr() error {
	if w.crashed.Load() {
		return ErrWorkerDied
	}
	return ErrWorkerClosed
}

func (w *Worker) Index() int { return w.idx }

func (w *Worker) Died() <-chan error { return w.died }

func (w *Worker) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (core.Router, error) {
	var r *Router
	err := w.exec(ctx, func() error {
		r = &Router{
			id:         uuid.NewString(),
			worker:     w,
			codecs:     codecs,
			caps:       Capabilities(codecs),
			producers:  make(map[string]*Producer),
			transports: make(map[string]*Transport),
		}
		w.mu.Lock()
		w.routers[r.id] = r
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.log.Info().Str("router", r.id).Msg("router created")
	return r, nil
}

func (w *Worker) forgetRouter(id string) {
	w.mu.Lock()
	delete(w.routers, id)
	w.mu.Unlock()
}

func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.quit)
		<-w.stopped

		w.mu.Lock()
		routers := make([]*Router, 0, len(w.routers))
		for _, r := range w.routers {
			routers = append(routers, r)
		}
		w.mu.Unlock()
		for _, r := range routers {
			r.Close()
		}
		close(w.died)
		w.log.Info().Msg("worker closed")
	})
}
