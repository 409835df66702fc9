// Package tenantdb owns every database connection the dashboard uses: one
// control-plane pool for users and the branch registry, and one lazily created
// pool per distinct branch database.
package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

type State int

const (
	StateUninitialized State = iota
	StateProbing
	StateConnected
	StateMockMode
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateConnected:
		return "connected"
	case StateMockMode:
		return "mock"
	}
	return "uninitialized"
}

// Pool is the subset of *pgxpool.Pool the registry depends on.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close() error
}

// PoolFactory creates a pool from a parsed configuration. It must not block
// on establishing connections.
type PoolFactory func(ctx context.Context, cfg *pgxpool.Config) (Pool, error)

type pgxPool struct {
	*pgxpool.Pool
}

func (p pgxPool) Close() error {
	p.Pool.Close()
	return nil
}

func NewPgxPool(ctx context.Context, cfg *pgxpool.Config) (Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pgxPool{Pool: pool}, nil
}

type Options struct {
	ControlPlaneURL string
	ForceMock       bool
	ControlTimeout  time.Duration
	BranchTimeout   time.Duration
	SeedAdminEmail  string
	NewPool         PoolFactory
}

type Registry struct {
	opts    Options
	newPool PoolFactory
	mock    *MockResponder

	mu       sync.Mutex
	state    State
	control  Pool
	branches map[PoolKey]Pool
	closed   bool
}

func New(opts Options) *Registry {
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = 5 * time.Second
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = 15 * time.Second
	}
	factory := opts.NewPool
	if factory == nil {
		factory = NewPgxPool
	}
	return &Registry{
		opts:     opts,
		newPool:  factory,
		mock:     NewMockResponder(),
		branches: make(map[PoolKey]Pool),
	}
}

// Initialize opens and probes the control-plane pool and ensures its schema.
// Any failure to connect leaves the registry permanently in mock mode; it
// never returns an error so that a database outage cannot stop startup.
func (r *Registry) Initialize(ctx context.Context) State {
	r.mu.Lock()
	if r.state != StateUninitialized {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.state = StateProbing
	r.mu.Unlock()

	pool, err := r.openControlPlane(ctx)
	if err != nil {
		log.Printf("[tenantdb] WARN: %v; control plane switched to mock mode", err)
		r.setState(StateMockMode, nil)
		return StateMockMode
	}

	r.setState(StateConnected, pool)
	log.Println("[tenantdb] control plane connected")

	if failures := r.ensureSchema(ctx); failures > 0 {
		log.Printf("[tenantdb] WARN: %d schema statements failed; continuing", failures)
	}
	return StateConnected
}

func (r *Registry) openControlPlane(ctx context.Context) (Pool, error) {
	if r.opts.ForceMock {
		return nil, errors.New("mock mode requested")
	}
	if r.opts.ControlPlaneURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL not set", ErrControlPlaneUnavailable)
	}

	cfg, err := controlPoolConfig(r.opts.ControlPlaneURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrControlPlaneUnavailable, err)
	}
	pool, err := r.newPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrControlPlaneUnavailable, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.opts.ControlTimeout)
	defer cancel()
	if err := pool.Ping(probeCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrControlPlaneUnavailable, err)
	}
	return pool, nil
}

func (r *Registry) setState(state State, control Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.control = control
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) BranchPoolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.branches)
}

// ControlPlane returns an executor for the shared database. In mock mode the
// executor answers from canned rows.
func (r *Registry) ControlPlane() Executor {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.state == StateMockMode:
		return mockExecutor{responder: r.mock}
	case r.state == StateConnected && !r.closed:
		return &poolExecutor{q: r.control, target: TargetControlPlane, timeout: r.opts.ControlTimeout}
	}
	return failedExecutor{err: fmt.Errorf("%w: registry is %s", ErrControlPlaneUnavailable, r.state)}
}

// WithControlPlaneTx runs fn inside one control-plane transaction. In mock
// mode fn runs against the mock executor without a transaction.
func (r *Registry) WithControlPlaneTx(ctx context.Context, fn func(Executor) error) error {
	r.mu.Lock()
	state, control, closed := r.state, r.control, r.closed
	r.mu.Unlock()

	if state == StateMockMode {
		return fn(mockExecutor{responder: r.mock})
	}
	if state != StateConnected || closed {
		return fmt.Errorf("%w: registry is %s", ErrControlPlaneUnavailable, state)
	}

	tx, err := control.Begin(ctx)
	if err != nil {
		return classify(TargetControlPlane, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&poolExecutor{q: tx, target: TargetControlPlane, timeout: r.opts.ControlTimeout}); err != nil {
		return err
	}
	return classify(TargetControlPlane, tx.Commit(ctx))
}

// Branch returns an executor bound to the pool for cfg's database, creating
// the pool on first use. While the control plane is in mock mode every branch
// is served by a no-op executor.
func (r *Registry) Branch(cfg domain.BranchConfig) Executor {
	key := KeyFor(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateMockMode {
		return noopExecutor{}
	}
	if r.closed {
		return failedExecutor{err: fmt.Errorf("%w: registry closed", ErrBranchUnreachable)}
	}

	pool, ok := r.branches[key]
	if !ok {
		pool = r.openBranchPool(key, cfg.Password)
		r.branches[key] = pool
	}
	return &poolExecutor{q: pool, target: TargetBranch, timeout: r.opts.BranchTimeout}
}

// openBranchPool must be called with r.mu held. A pool that cannot be built is
// still cached so that every request does not repeat a slow failure.
func (r *Registry) openBranchPool(key PoolKey, password string) Pool {
	cfg, err := branchPoolConfig(key, password)
	if err != nil {
		log.Printf("[tenantdb] WARN: invalid branch target %s: %v", key, err)
		return failedPool{err: fmt.Errorf("%w: %s: %v", ErrBranchUnreachable, key, err)}
	}
	pool, err := r.newPool(context.Background(), cfg)
	if err != nil {
		log.Printf("[tenantdb] WARN: cannot create pool for %s: %v", key, err)
		return failedPool{err: fmt.Errorf("%w: %s: %v", ErrBranchUnreachable, key, err)}
	}
	log.Printf("[tenantdb] branch pool created for %s", key)
	return pool
}

// Evict closes and forgets the pool for cfg's database, if any. The next
// Branch call for the same target creates a fresh pool.
func (r *Registry) Evict(cfg domain.BranchConfig) error {
	key := KeyFor(cfg)

	r.mu.Lock()
	pool, ok := r.branches[key]
	delete(r.branches, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return pool.Close()
}

// Shutdown closes the control-plane pool and every branch pool. It keeps
// going when a close fails and is safe to call more than once.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := make(map[string]Pool, len(r.branches)+1)
	if r.control != nil {
		pools["control-plane"] = r.control
	}
	for key, pool := range r.branches {
		pools[key.String()] = pool
	}
	r.branches = make(map[PoolKey]Pool)
	r.mu.Unlock()

	var errs []error
	for name, pool := range pools {
		if err := pool.Close(); err != nil {
			log.Printf("[tenantdb] close %s: %v", name, err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// failedPool stands in for a branch pool that could not be constructed.
type failedPool struct {
	err error
}

func (p failedPool) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, p.err
}

func (p failedPool) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, p.err
}

func (p failedPool) Begin(_ context.Context) (pgx.Tx, error) {
	return nil, p.err
}

func (p failedPool) Ping(_ context.Context) error {
	return p.err
}

func (p failedPool) Close() error {
	return nil
}
