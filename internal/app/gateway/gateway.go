// Package gateway executes blocking store operations on a bounded worker
// pool so no caller goroutine ever waits on network I/O to the store.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luggez/groupsystem/internal/app/metrics"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/app/system"
	"github.com/luggez/groupsystem/pkg/logger"
)

// Config sizes the worker pool independently from the store connection pool.
type Config struct {
	Workers   int
	QueueSize int
	OpTimeout time.Duration
}

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
	defaultOpTimeout = 5 * time.Second
)

var _ system.Service = (*Gateway)(nil)

// Gateway owns no long-lived state; it is a stateless execution facade over
// the shared store connection pool.
type Gateway struct {
	log     *logger.Logger
	tasks   chan task
	workers int
	timeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

type task struct {
	name string
	run  func(ctx context.Context)
	fail func()
}

// New creates a gateway with the given pool configuration.
func New(cfg Config, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &Gateway{
		log:     log,
		tasks:   make(chan task, cfg.QueueSize),
		workers: cfg.Workers,
		timeout: cfg.OpTimeout,
	}
}

func (g *Gateway) Name() string { return "persistence-gateway" }

func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()

	for i := 0; i < g.workers; i++ {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case t := <-g.tasks:
					g.execute(t)
				}
			}
		}()
	}

	g.log.Infof("persistence gateway started (%d workers)", g.workers)
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	cancel := g.cancel
	g.running = false
	g.cancel = nil
	g.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Workers are gone; fail whatever is still queued so no future hangs.
	for {
		select {
		case t := <-g.tasks:
			t.fail()
		default:
			g.log.Info("persistence gateway stopped")
			return nil
		}
	}
}

func (g *Gateway) execute(t task) {
	metrics.SetGatewayQueueDepth(len(g.tasks))

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	start := time.Now()
	t.run(ctx)
	metrics.RecordGatewayTask(t.name, time.Since(start))
}

// Future completes with an operation's result or a typed failure.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns an already-completed future. Used for fail-fast validation
// that must not schedule any async work.
func Done[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(value, err)
	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Wait blocks until the operation finishes or the caller's context expires.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Do schedules op on the pool and returns a handle for its completion. When
// the queue is saturated or the gateway is not running, the returned future
// fails immediately with storage.ErrUnavailable instead of blocking the
// caller.
func Do[T any](g *Gateway, name string, op func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()

	t := task{
		name: name,
		run: func(ctx context.Context) {
			value, err := op(ctx)
			if err != nil && isTimeout(ctx, err) {
				err = storage.ErrUnavailable
			}
			f.complete(value, err)
		},
		fail: func() {
			var zero T
			f.complete(zero, storage.ErrUnavailable)
		},
	}

	// The enqueue happens under the same lock that Stop takes to flip
	// running, so no task can land in the queue after Stop's drain.
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		t.fail()
		return f
	}
	select {
	case g.tasks <- t:
		metrics.SetGatewayQueueDepth(len(g.tasks))
		g.mu.Unlock()
	default:
		g.mu.Unlock()
		g.log.WithField("op", name).Warn("gateway queue saturated, rejecting operation")
		metrics.RecordGatewayRejection(name)
		t.fail()
	}
	return f
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
