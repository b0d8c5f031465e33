package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophforum/internal/logging"
	"golang.org/x/sync/semaphore"
)

const DefaultCapacity = 10

// Observer receives pool and transaction events. The metrics package
// provides a Prometheus implementation.
type Observer interface {
	ObserveAcquire(wait time.Duration, err error)
	ObserveRelease(inUse int64, discarded bool)
	ObserveTransaction(committed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(time.Duration, error) {}
func (nopObserver) ObserveRelease(int64, bool)          {}
func (nopObserver) ObserveTransaction(bool)             {}

// Stats is a point-in-time snapshot of pool bookkeeping.
type Stats struct {
	Capacity  int64
	InUse     int64
	PeakInUse int64
	Acquired  uint64
	Discarded uint64
}

// Pool hands out at most Capacity sessions at a time. Each session pins one
// physical connection from the underlying *sql.DB until it is released.
type Pool struct {
	db  *sql.DB
	sem *semaphore.Weighted

	capacity       int64
	acquireTimeout time.Duration
	txOpts         *sql.TxOptions
	observer       Observer
	logger         logging.Logger

	mu        sync.Mutex
	inUse     int64
	peak      int64
	acquired  uint64
	discarded uint64
	closed    bool
}

type Option func(*Pool)

// WithCapacity sets the maximum number of concurrently checked out sessions.
// Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.capacity = int64(n)
		}
	}
}

// WithAcquireTimeout bounds how long Acquire waits for a free connection.
// Zero means wait until the context is done.
func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) { p.acquireTimeout = d }
}

func WithObserver(o Observer) Option {
	return func(p *Pool) {
		if o != nil {
			p.observer = o
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTxOptions sets the options used by Session.WithTransaction.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(p *Pool) { p.txOpts = opts }
}

// NewPool wraps db and caps its open connections to the pool capacity.
func NewPool(db *sql.DB, opts ...Option) *Pool {
	p := &Pool{
		db:       db,
		capacity: DefaultCapacity,
		observer: nopObserver{},
		logger:   logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}

	p.sem = semaphore.NewWeighted(p.capacity)
	db.SetMaxOpenConns(int(p.capacity))
	db.SetMaxIdleConns(int(p.capacity))

	return p
}

// Capacity returns the maximum number of sessions.
func (p *Pool) Capacity() int { return int(p.capacity) }

// Acquire checks out a dedicated session. It blocks while all connections are
// in use. It fails with ErrPoolExhausted only when an acquire timeout is set
// and elapses, and with ErrConnectionFault when a connection can't be opened.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()
	s, err := p.acquire(ctx)
	p.observer.ObserveAcquire(time.Since(start), err)
	return s, err
}

func (p *Pool) acquire(ctx context.Context) (*Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	waitCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn(ctx, "pool exhausted", "capacity", p.capacity, "timeout", p.acquireTimeout.String())
		return nil, ErrPoolExhausted
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.sem.Release(1)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFault, err)
	}

	p.mu.Lock()
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	p.acquired++
	p.mu.Unlock()

	return newSession(conn, p.txOpts, p.observer), nil
}

// Release returns the session to the pool. A session that observed a
// connection fault has its connection discarded instead. Releasing the same
// session twice is a no-op.
func (p *Pool) Release(s *Session) {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}

	discarded := s.Faulted()
	if discarded {
		// Returning driver.ErrBadConn from Raw makes database/sql drop the
		// connection instead of putting it back into its idle list.
		_ = s.conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = s.conn.Close()

	p.mu.Lock()
	p.inUse--
	inUse := p.inUse
	if discarded {
		p.discarded++
	}
	p.mu.Unlock()

	p.sem.Release(1)
	p.observer.ObserveRelease(inUse, discarded)

	if discarded {
		p.logger.Warn(context.Background(), "discarded faulted connection", "in_use", inUse)
	}
}

// Do acquires a session, runs fn with it and always releases it afterwards,
// including when fn panics.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(s)

	return fn(ctx, s)
}

// Ping checks a connection out through the pool and pings the server with it.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Do(ctx, func(ctx context.Context, s *Session) error {
		return s.Ping(ctx)
	})
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Capacity:  p.capacity,
		InUse:     p.inUse,
		PeakInUse: p.peak,
		Acquired:  p.acquired,
		Discarded: p.discarded,
	}
}

// Close stops handing out sessions and closes the underlying database.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.db.Close()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
