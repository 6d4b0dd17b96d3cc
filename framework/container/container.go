package container

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ── Release capability ───────────────────────────────────────────────────────

// Disposable is implemented by services holding state that must be released
// when their container is torn down. io.Closer is accepted as well; Dispose
// wins when a value implements both.
type Disposable interface {
	Dispose()
}

// Observer is notified about instance construction and release.
type Observer interface {
	Constructed(key string, took time.Duration)
	ConstructFailed(key string, err error)
	Released(key string, disposable bool, err error)
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container holds at most one instance per registered key, built on first
// Resolve and owned until ReleaseAll.
//
// The registration set is fixed at construction. Resolve is the only
// mutation entry and ReleaseAll the only teardown entry; both are safe for
// concurrent use.
type Container struct {
	regs     *Registrations
	logger   *slog.Logger
	observer Observer

	// collapses concurrent constructions of one key
	flight singleflight.Group

	mu        sync.Mutex
	instances map[string]any
	order     []string // keys in construction order
	released  bool
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for construction and release events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches an Observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Container) {
		c.observer = o
	}
}

// NewContainer creates an empty container over regs.
func NewContainer(regs *Registrations, opts ...Option) *Container {
	c := &Container{
		regs:      regs,
		logger:    slog.Default(),
		observer:  nopObserver{},
		instances: make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Resolve returns the singleton for key, constructing it on first use.
//
// Errors returned by the key's constructor are passed through unchanged and
// leave the key unresolved, so a later call retries.
func (c *Container) Resolve(key string) (any, error) {
	return c.resolve(key, nil)
}

// ResolveTagged resolves every key carrying tag, in registration order.
func (c *Container) ResolveTagged(tag string) ([]any, error) {
	keys := c.regs.Tagged(tag)
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		inst, err := c.Resolve(key)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (c *Container) resolve(key string, stack []string) (any, error) {
	for _, k := range stack {
		if k == key {
			return nil, errReentrant(extend(stack, key))
		}
	}

	if inst, ok, err := c.cached(key); ok || err != nil {
		return inst, err
	}

	reg, ok := c.regs.Lookup(key)
	if !ok {
		return nil, errUnknownKey(key)
	}

	inst, err, _ := c.flight.Do(key, func() (any, error) {
		return c.construct(reg, extend(stack, key))
	})
	return inst, err
}

// cached reports a previously built instance, or that the container is gone.
func (c *Container) cached(key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, false, AlreadyDisposed(key, "container")
	}
	inst, ok := c.instances[key]
	return inst, ok, nil
}

func (c *Container) construct(reg Registration, chain []string) (any, error) {
	// A flight that finished just before this one may have stored it.
	if inst, ok, err := c.cached(reg.Key); ok || err != nil {
		return inst, err
	}

	start := time.Now()
	inst, err := reg.Constructor(&buildScope{c: c, stack: chain})
	took := time.Since(start)
	if err != nil {
		c.logger.Debug("service construction failed", "key", reg.Key, "error", err)
		c.observer.ConstructFailed(reg.Key, err)
		return nil, err
	}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		// Torn down mid-construction: nobody else will ever see it.
		if !reg.External {
			c.observer.Constructed(reg.Key, took)
			disposable, rerr := release(inst)
			c.observer.Released(reg.Key, disposable, rerr)
		}
		return nil, AlreadyDisposed(reg.Key, "container")
	}
	c.instances[reg.Key] = inst
	if !reg.External {
		c.order = append(c.order, reg.Key)
	}
	c.mu.Unlock()

	c.logger.Debug("service constructed", "key", reg.Key, "took", took)
	if !reg.External {
		c.observer.Constructed(reg.Key, took)
	}
	return inst, nil
}

// buildScope is the Resolver handed to a constructor. It carries the chain of
// keys under construction so self-resolution is caught instead of deadlocking.
type buildScope struct {
	c     *Container
	stack []string
}

func (s *buildScope) Resolve(key string) (any, error) {
	return s.c.resolve(key, s.stack)
}

func extend(stack []string, key string) []string {
	out := make([]string, len(stack)+1)
	copy(out, stack)
	out[len(stack)] = key
	return out
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// ReleaseAll releases every owned instance in reverse construction order and
// drops all references. Only the first call does anything.
//
// Every instance is visited even when some releases fail; failures from
// io.Closer implementations are joined into the returned error.
func (c *Container) ReleaseAll() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	order, instances := c.order, c.instances
	c.order, c.instances = nil, make(map[string]any)
	c.mu.Unlock()

	var errs []error
	seen := make(map[any]struct{}, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		key := order[i]
		inst := instances[key]
		if isComparable(inst) {
			if _, dup := seen[inst]; dup {
				c.observer.Released(key, false, nil)
				continue
			}
			seen[inst] = struct{}{}
		}
		disposable, err := release(inst)
		if err != nil {
			c.logger.Warn("service release failed", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
		c.observer.Released(key, disposable, err)
	}

	if len(order) > 0 {
		c.logger.Debug("container released", "instances", len(order))
	}
	return errors.Join(errs...)
}

func release(inst any) (bool, error) {
	switch v := inst.(type) {
	case Disposable:
		v.Dispose()
		return true, nil
	case io.Closer:
		return true, v.Close()
	default:
		return false, nil
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Registrations returns the registration set the container was built over.
func (c *Container) Registrations() *Registrations { return c.regs }

// Resolved reports whether key has been constructed in this container.
func (c *Container) Resolved(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.instances[key]
	return ok
}

// Constructed returns the owned keys built so far, in construction order.
func (c *Container) Constructed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Released reports whether ReleaseAll has run.
func (c *Container) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// isComparable reports whether v can be used as a map key without panicking.
func isComparable(v any) bool {
	return v != nil && reflect.ValueOf(v).Comparable()
}

type nopObserver struct{}

func (nopObserver) Constructed(string, time.Duration) {}
func (nopObserver) ConstructFailed(string, error)     {}
func (nopObserver) Released(string, bool, error)      {}

// ── Generics helper ───────────────────────────────────────────────────────────

// Resolve resolves key from r and type-asserts the result.
//
//	db, err := container.Resolve[*sql.DB](f, "db")
func Resolve[T any](r Resolver, key string) (T, error) {
	var zero T
	inst, err := r.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, errTypeMismatch(key, reflect.TypeOf((*T)(nil)).Elem().String(), inst)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on any error. Meant for bootstrap
// code where a missing service is a programming error.
func MustResolve[T any](r Resolver, key string) T {
	typed, err := Resolve[T](r, key)
	if err != nil {
		panic(fmt.Sprintf("container: MustResolve[%T]: %v", *new(T), err))
	}
	return typed
}
