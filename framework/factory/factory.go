package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/km-arc/go-factory/framework/container"
	"github.com/km-arc/go-factory/framework/metrics"
)

// State is the disposal state of a factory node. It only moves forward.
type State int32

const (
	StateAlive State = iota
	StateDisposing
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Option configures a root factory. Every descendant inherits it.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger for the whole tree.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics reports factory and instance lifetimes of the whole tree to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// Factory is a node of the ownership tree. It builds at most one container
// over its merged registrations and owns every factory derived from it.
//
// All methods are safe for concurrent use.
type Factory struct {
	id       string
	regs     *container.Registrations
	parent   *Factory // lifetime checks only, never released through
	depth    int
	settings *settings

	state atomic.Int32
	done  chan struct{} // closed once disposal has finished

	mu        sync.Mutex
	children  []*Factory
	container *container.Container
}

// New creates a root factory over regs.
func New(regs *container.Registrations, opts ...Option) *Factory {
	s := &settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if regs == nil {
		regs = container.NewRegistrations()
	}
	return newNode(nil, regs, s)
}

func newNode(parent *Factory, regs *container.Registrations, s *settings) *Factory {
	f := &Factory{
		id:       uuid.NewString(),
		regs:     regs,
		parent:   parent,
		settings: s,
		done:     make(chan struct{}),
	}
	attrs := []any{"factory", f.id, "registrations", regs.Len()}
	if parent != nil {
		f.depth = parent.depth + 1
		attrs = append(attrs, "parent", parent.id)
	}
	s.logger.Debug("factory created", attrs...)
	if s.metrics != nil {
		s.metrics.FactoryCreated()
	}
	return f
}

// ── Tree ──────────────────────────────────────────────────────────────────────

// ID returns the node's unique id.
func (f *Factory) ID() string { return f.id }

// Parent returns the factory this one was derived from, or nil for a root.
func (f *Factory) Parent() *Factory { return f.parent }

// Depth is 0 for a root and parent depth + 1 otherwise.
func (f *Factory) Depth() int { return f.depth }

// Registrations returns the node's merged registration set.
func (f *Factory) Registrations() *container.Registrations { return f.regs }

// Children returns a snapshot of the factories derived from f. A disposed
// factory has no children.
func (f *Factory) Children() []*Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Factory(nil), f.children...)
}

// State returns the node's own disposal state.
func (f *Factory) State() State { return State(f.state.Load()) }

// Disposed reports whether disposal of f has started or finished.
func (f *Factory) Disposed() bool { return f.State() != StateAlive }

// Built reports whether the node's container exists.
func (f *Factory) Built() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.container != nil
}

// checkAlive fails if f or any ancestor has begun disposal.
func (f *Factory) checkAlive(key string) error {
	for n := f; n != nil; n = n.parent {
		if n.State() == StateAlive {
			continue
		}
		if n == f {
			return container.AlreadyDisposed(key, "factory "+f.id)
		}
		return container.AlreadyDisposed(key, "ancestor factory "+n.id)
	}
	return nil
}

// ── Derive ────────────────────────────────────────────────────────────────────

// Derive creates a child factory whose registrations are f's with overrides
// laid over them. The child gets its own container when built; nothing
// constructed in f is shared with it.
func (f *Factory) Derive(overrides *container.Registrations) (*Factory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkAlive(""); err != nil {
		return nil, err
	}

	child := newNode(f, f.regs.Merge(overrides), f.settings)
	f.children = append(f.children, child)
	return child, nil
}

// WithServices derives a child factory from registrations collected by
// configure.
//
//	child, err := root.WithServices(func(s *container.Services) {
//	    s.Singleton("clock", func(container.Resolver) (any, error) { return fakeClock{}, nil })
//	})
func (f *Factory) WithServices(configure func(s *container.Services)) (*Factory, error) {
	s := container.NewServices()
	if configure != nil {
		configure(s)
	}
	return f.Derive(s.Build())
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Container returns the node's container, building it on first call.
func (f *Factory) Container() (*container.Container, error) {
	return f.build("")
}

func (f *Factory) build(key string) (*container.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkAlive(key); err != nil {
		return nil, err
	}
	if f.container != nil {
		return f.container, nil
	}

	opts := []container.Option{container.WithLogger(f.settings.logger.With("factory", f.id))}
	if f.settings.metrics != nil {
		opts = append(opts, container.WithObserver(f.settings.metrics))
	}
	f.container = container.NewContainer(f.regs, opts...)
	f.settings.logger.Debug("container built", "factory", f.id)
	return f.container, nil
}

// Resolve returns the singleton for key in f's scope, building the container
// and the instance on first use.
func (f *Factory) Resolve(key string) (any, error) {
	c, err := f.build(key)
	if err != nil {
		return nil, err
	}
	return c.Resolve(key)
}

// ResolveTagged resolves every key carrying tag in f's scope.
func (f *Factory) ResolveTagged(tag string) ([]any, error) {
	c, err := f.build("")
	if err != nil {
		return nil, err
	}
	return c.ResolveTagged(tag)
}

// ── Disposal ──────────────────────────────────────────────────────────────────

// Dispose tears down f's subtree: every descendant first, then f's own
// container. Only the first call does the work; later and concurrent calls
// wait for it to finish and return nil.
//
// As soon as disposal starts, Resolve and Derive on f or any descendant fail
// with container.ErrAlreadyDisposed. Release failures do not stop the
// teardown; they are joined into the returned error.
func (f *Factory) Dispose() error {
	f.mu.Lock()
	if !f.state.CompareAndSwap(int32(StateAlive), int32(StateDisposing)) {
		f.mu.Unlock()
		<-f.done
		return nil
	}
	children, c := f.children, f.container
	f.children, f.container = nil, nil
	f.mu.Unlock()

	var errs []error
	for _, child := range children {
		if err := child.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}

	released := 0
	if c != nil {
		released = len(c.Constructed())
		if err := c.ReleaseAll(); err != nil {
			errs = append(errs, fmt.Errorf("factory %s: %w", f.id, err))
		}
	}

	f.state.Store(int32(StateDisposed))
	close(f.done)
	if f.parent != nil {
		f.parent.detach(f)
	}

	f.settings.logger.Debug("factory disposed",
		"factory", f.id, "children", len(children), "released", released)
	if f.settings.metrics != nil {
		f.settings.metrics.FactoryDisposed()
	}
	return errors.Join(errs...)
}

// detach drops a disposed child so a live parent stops referencing it.
func (f *Factory) detach(child *Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := slices.Index(f.children, child); i >= 0 {
		f.children = slices.Delete(f.children, i, i+1)
	}
}

// Close disposes f. It lets a factory be owned like any io.Closer.
func (f *Factory) Close() error { return f.Dispose() }

// ── Introspection ─────────────────────────────────────────────────────────────

// NodeInfo describes one node of the tree at the time of Snapshot.
type NodeInfo struct {
	ID          string     `json:"id"`
	Depth       int        `json:"depth"`
	State       string     `json:"state"`
	Built       bool       `json:"built"`
	Constructed []string   `json:"constructed,omitempty"`
	Children    []NodeInfo `json:"children,omitempty"`
}

// Snapshot describes f's subtree.
func (f *Factory) Snapshot() NodeInfo {
	f.mu.Lock()
	children, c := append([]*Factory(nil), f.children...), f.container
	f.mu.Unlock()

	info := NodeInfo{ID: f.id, Depth: f.depth, State: f.State().String(), Built: c != nil}
	if c != nil {
		info.Constructed = c.Constructed()
	}
	for _, child := range children {
		info.Children = append(info.Children, child.Snapshot())
	}
	return info
}
