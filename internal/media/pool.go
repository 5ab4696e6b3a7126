package media

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pixelligue/zvonizvonu/internal/core"
)

// WorkerFactory builds the worker with the given pool index.
type WorkerFactory func(idx int) (core.Worker, error)

// Pool owns a fixed set of workers created once at startup and hands them
// out round-robin.
type Pool struct {
	workers []core.Worker
	next    atomic.Uint64
}

func NewPool(ctx context.Context, n int, factory WorkerFactory) (*Pool, error) {
	if n < 1 {
		return nil, errors.New("pool needs at least one worker")
	}
	workers := make([]core.Worker, n)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			w, err := factory(i)
			if err != nil {
				return fmt.Errorf("create worker %d: %w", i, err)
			}
			workers[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, w := range workers {
			if w != nil {
				w.Close()
			}
		}
		return nil, err
	}
	log.Info().Str("module", "media").Int("workers", n).Msg("worker pool created")
	return &Pool{workers: workers}, nil
}

// NewPionPool creates cfg.WorkerCount() pion-backed workers, each with its
// own slice of the RTC port range.
func NewPionPool(ctx context.Context, cfg Config) (*Pool, error) {
	n := cfg.WorkerCount()
	return NewPool(ctx, n, func(idx int) (core.Worker, error) {
		lo, hi := cfg.PortRange(idx, n)
		return NewWorker(idx, cfg, lo, hi)
	})
}

func (p *Pool) NextWorker() core.Worker {
	i := p.next.Add(1) - 1
	return p.workers[i%uint64(len(p.workers))]
}

func (p *Pool) Size() int { return len(p.workers) }

// Watch calls onDeath for every worker that dies before ctx is done.
// Routing contexts cannot migrate between workers, so callers are expected
// to terminate the process.
func (p *Pool) Watch(ctx context.Context, onDeath func(idx int, err error)) {
	for _, w := range p.workers {
		go func(w core.Worker) {
			select {
			case <-ctx.Done():
			case err, ok := <-w.Died():
				if !ok {
					return
				}
				log.Error().Err(err).Str("module", "media").Int("worker", w.Index()).Msg("worker died")
				onDeath(w.Index(), err)
			}
		}(w)
	}
}

func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Close()
	}
	log.Info().Str("module", "media").Msg("worker pool closed")
}
