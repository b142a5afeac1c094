// Package ipc implements the synchronous IPC transport: a bounded pool of
// Unix socket connections to a local node, each serving one request at a
// time.
package ipc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vipnode/ethrpc/transport"
)

var _ transport.Sync = &Pool{}

// Stats is a snapshot of the pool's workers.
type Stats struct {
	// Open is the number of connected workers, idle or in use.
	Open int
	// Idle is the number of connected workers waiting for a checkout.
	Idle int
}

// Pool is an IPC transport. Workers are created on first checkout, or all at
// once on start when EagerWorkers is set.
type Pool struct {
	path            string
	size            int
	timeout         time.Duration
	dialTimeout     time.Duration
	bufSize         int
	checkoutTimeout time.Duration
	idleTimeout     time.Duration
	maxIdlePings    int

	sem *semaphore.Weighted

	mu     sync.Mutex
	idle   []*worker
	open   int
	closed bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a pool for cfg.SocketPath.
func New(ctx context.Context, cfg transport.Config) (*Pool, error) {
	if cfg.SocketPath == "" {
		return nil, &transport.ConfigError{Field: "SocketPath", Reason: "required"}
	}
	if cfg.PoolSize < 0 {
		return nil, &transport.ConfigError{Field: "PoolSize", Reason: "must not be negative"}
	}
	if cfg.MaxIdlePings < 0 {
		return nil, &transport.ConfigError{Field: "MaxIdlePings", Reason: "must not be negative"}
	}

	p := &Pool{
		path:            cfg.SocketPath,
		size:            cfg.PoolSize,
		timeout:         cfg.TimeoutOrDefault(),
		dialTimeout:     cfg.SocketOptions.DialTimeout,
		bufSize:         cfg.SocketOptions.ReadBufferSize,
		checkoutTimeout: cfg.CheckoutTimeout,
		idleTimeout:     cfg.WorkerIdleTimeout,
		maxIdlePings:    cfg.MaxIdlePings,
		quit:            make(chan struct{}),
	}
	if p.size == 0 {
		p.size = transport.DefaultPoolSize
	}
	if p.dialTimeout == 0 {
		p.dialTimeout = p.timeout
	}
	if p.checkoutTimeout == 0 {
		p.checkoutTimeout = transport.DefaultCheckoutTimeout
	}
	p.sem = semaphore.NewWeighted(int64(p.size))

	if cfg.EagerWorkers {
		if err := p.start(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	if p.idleTimeout > 0 {
		p.wg.Add(1)
		go p.reap()
	}
	return p, nil
}

// start connects every worker concurrently.
func (p *Pool) start(ctx context.Context) error {
	workers := make([]*worker, p.size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		i := i
		g.Go(func() error {
			w, err := dialWorker(gctx, p.path, p.dialTimeout, p.bufSize)
			workers[i] = w
			return err
		})
	}
	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range workers {
		if w == nil {
			continue
		}
		p.idle = append(p.idle, w)
		p.open++
	}
	if err == nil {
		logger.Debugf("started %d workers on %s", p.size, p.path)
	}
	return err
}

func (p *Pool) Kind() transport.Kind {
	return transport.IPC
}

// Send checks out a worker, writes payload to its socket and returns the
// next JSON value read from it.
func (p *Pool) Send(ctx context.Context, payload []byte) ([]byte, error) {
	w, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := w.exchange(ctx, payload, p.timeout)
	if err != nil {
		logger.Infof("terminating failed worker on %s: %s", p.path, err)
	}
	p.checkin(w, err != nil)
	return resp, err
}

func (p *Pool) checkout(ctx context.Context) (*worker, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.checkoutTimeout)
	defer cancel()
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PoolTimeoutError{After: p.checkoutTimeout}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, transport.ErrClosed
	}
	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return w, nil
	}
	p.open++
	p.mu.Unlock()

	w, err := dialWorker(ctx, p.path, p.dialTimeout, p.bufSize)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, err
	}
	return w, nil
}

// checkin returns w to the pool, or terminates it and frees its slot for a
// fresh one.
func (p *Pool) checkin(w *worker, terminate bool) {
	defer p.sem.Release(1)

	p.mu.Lock()
	if terminate || p.closed {
		p.open--
		p.mu.Unlock()
		w.terminate()
		return
	}
	p.idle = append(p.idle, w)
	p.mu.Unlock()
}

// take removes w from the idle workers, if it's still there.
func (p *Pool) take(w *worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	for i, idle := range p.idle {
		if idle == w {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return true
		}
	}
	return false
}

// reap pings idle workers every idleTimeout. Workers whose socket is gone, or
// that reached maxIdlePings, are terminated.
func (p *Pool) reap() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.idleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case now := <-ticker.C:
			p.pingIdle(now)
		}
	}
}

// pingIdle checks out each idle worker in turn, so a ping never shares a
// socket with an exchange.
func (p *Pool) pingIdle(now time.Time) {
	p.mu.Lock()
	candidates := append([]*worker(nil), p.idle...)
	p.mu.Unlock()

	var dead, expired int
	for _, w := range candidates {
		if !p.sem.TryAcquire(1) {
			break
		}
		if !p.take(w) {
			p.sem.Release(1)
			continue
		}
		if now.Sub(w.idleSince) < p.idleTimeout {
			p.checkin(w, false)
			continue
		}
		w.idlePings++
		switch {
		case !w.ping():
			dead++
			p.checkin(w, true)
		case p.maxIdlePings > 0 && w.idlePings >= p.maxIdlePings:
			expired++
			p.checkin(w, true)
		default:
			p.checkin(w, false)
		}
	}
	if dead > 0 {
		logger.Infof("terminated %d idle workers with a closed socket on %s", dead, p.path)
	}
	if expired > 0 {
		logger.Debugf("terminated %d idle workers on %s", expired, p.path)
	}
}

// Stats returns a snapshot of the pool's workers.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Open: p.open, Idle: len(p.idle)}
}

// Close terminates the idle workers. Workers in use are terminated when they
// are checked in.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()

	var err error
	for _, w := range idle {
		err = multierr.Append(err, w.terminate())
	}
	return err
}
