package container_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-factory/framework/container"
)

// ── stub services ─────────────────────────────────────────────────────────────

type disposableService struct {
	disposeCalls atomic.Int32
}

func (s *disposableService) Dispose() { s.disposeCalls.Add(1) }

type closerService struct {
	closeCalls atomic.Int32
	err        error
}

func (s *closerService) Close() error {
	s.closeCalls.Add(1)
	return s.err
}

type recordingObserver struct {
	mu          sync.Mutex
	constructed []string
	failed      []string
	released    []string
}

func (o *recordingObserver) Constructed(key string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.constructed = append(o.constructed, key)
}

func (o *recordingObserver) ConstructFailed(key string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, key)
}

func (o *recordingObserver) Released(key string, _ bool, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released = append(o.released, key)
}

func counting(calls *atomic.Int32) container.Constructor {
	return func(container.Resolver) (any, error) {
		calls.Add(1)
		return &disposableService{}, nil
	}
}

// ── Resolve ───────────────────────────────────────────────────────────────────

func TestContainer_Resolve_ConstructsOnceAndCaches(t *testing.T) {
	var calls atomic.Int32
	c := container.NewContainer(container.NewServices().Singleton("svc", counting(&calls)).Build())

	first, err := c.Resolve("svc")
	require.NoError(t, err)
	second, err := c.Resolve("svc")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Resolved("svc"))
}

func TestContainer_Resolve_IsLazy(t *testing.T) {
	var a, b atomic.Int32
	c := container.NewContainer(container.NewServices().
		Singleton("a", counting(&a)).
		Singleton("b", counting(&b)).
		Build())

	_, err := c.Resolve("a")
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(0), b.Load(), "unresolved registration must not be constructed")
	assert.Equal(t, []string{"a"}, c.Constructed())
	assert.False(t, c.Resolved("b"))
}

func TestContainer_Resolve_UnknownKey(t *testing.T) {
	c := container.NewContainer(nil)

	_, err := c.Resolve("missing")

	require.Error(t, err)
	assert.True(t, container.IsUnknownKey(err))
	assert.ErrorIs(t, err, container.ErrUnknownKey)
}

func TestContainer_Resolve_ConstructorErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("boom")
	var attempts atomic.Int32
	c := container.NewContainer(container.NewServices().Singleton("svc", func(container.Resolver) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, boom
		}
		return &disposableService{}, nil
	}).Build())

	_, err := c.Resolve("svc")
	assert.Same(t, boom, err)
	assert.False(t, c.Resolved("svc"), "failed construction must not be cached")

	inst, err := c.Resolve("svc")
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestContainer_Resolve_DependenciesThroughResolver(t *testing.T) {
	type repo struct{ db *disposableService }

	c := container.NewContainer(container.NewServices().
		Singleton("db", func(container.Resolver) (any, error) { return &disposableService{}, nil }).
		Singleton("repo", func(r container.Resolver) (any, error) {
			db, err := container.Resolve[*disposableService](r, "db")
			if err != nil {
				return nil, err
			}
			return &repo{db: db}, nil
		}).
		Build())

	rp, err := container.Resolve[*repo](c, "repo")
	require.NoError(t, err)
	db, err := container.Resolve[*disposableService](c, "db")
	require.NoError(t, err)

	assert.Same(t, db, rp.db)
	assert.Equal(t, []string{"db", "repo"}, c.Constructed())
}

func TestContainer_Resolve_SelfReentrancyFails(t *testing.T) {
	c := container.NewContainer(container.NewServices().Singleton("loop", func(r container.Resolver) (any, error) {
		return r.Resolve("loop")
	}).Build())

	_, err := c.Resolve("loop")

	require.Error(t, err)
	assert.True(t, container.IsReentrantConstruction(err))
	var cerr *container.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"loop", "loop"}, cerr.Chain)
	assert.False(t, c.Resolved("loop"))
}

func TestContainer_Resolve_IndirectReentrancyFails(t *testing.T) {
	c := container.NewContainer(container.NewServices().
		Singleton("a", func(r container.Resolver) (any, error) { return r.Resolve("b") }).
		Singleton("b", func(r container.Resolver) (any, error) { return r.Resolve("a") }).
		Build())

	_, err := c.Resolve("a")

	require.Error(t, err)
	var cerr *container.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, container.ErrCodeReentrantConstruction, cerr.Code)
	assert.Equal(t, []string{"a", "b", "a"}, cerr.Chain)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestContainer_Resolve_ConcurrentCallersShareOneConstruction(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	c := container.NewContainer(container.NewServices().Singleton("slow", func(container.Resolver) (any, error) {
		calls.Add(1)
		<-gate
		return &disposableService{}, nil
	}).Build())

	const callers = 16
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := c.Resolve("slow")
			assert.NoError(t, err)
			results[i] = inst
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestContainer_ResolveTagged(t *testing.T) {
	c := container.NewContainer(container.NewServices().
		Singleton("one", counting(new(atomic.Int32)), "disposable").
		Singleton("other", counting(new(atomic.Int32))).
		Singleton("two", counting(new(atomic.Int32)), "disposable").
		Build())

	all, err := c.ResolveTagged("disposable")

	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"one", "two"}, c.Constructed())
}

func TestResolve_TypeMismatch(t *testing.T) {
	c := container.NewContainer(container.NewServices().Value("name", "gofactory").Build())

	_, err := container.Resolve[int](c, "name")

	assert.True(t, container.IsTypeMismatch(err))
	assert.Contains(t, err.Error(), "want int")
}

func TestMustResolve_PanicsOnUnknownKey(t *testing.T) {
	c := container.NewContainer(nil)
	assert.Panics(t, func() { container.MustResolve[string](c, "missing") })
}

// ── ReleaseAll ────────────────────────────────────────────────────────────────

func TestContainer_ReleaseAll_ReleasesConstructedExactlyOnce(t *testing.T) {
	d := &disposableService{}
	cl := &closerService{}
	var unused atomic.Int32
	c := container.NewContainer(container.NewServices().
		Singleton("d", func(container.Resolver) (any, error) { return d, nil }).
		Singleton("c", func(container.Resolver) (any, error) { return cl, nil }).
		Singleton("unused", counting(&unused)).
		Singleton("plain", func(container.Resolver) (any, error) { return 42, nil }).
		Build())

	for _, key := range []string{"d", "c", "plain"} {
		_, err := c.Resolve(key)
		require.NoError(t, err)
	}

	require.NoError(t, c.ReleaseAll())
	require.NoError(t, c.ReleaseAll())

	assert.Equal(t, int32(1), d.disposeCalls.Load())
	assert.Equal(t, int32(1), cl.closeCalls.Load())
	assert.Equal(t, int32(0), unused.Load())
	assert.True(t, c.Released())
	assert.Empty(t, c.Constructed())
}

func TestContainer_ReleaseAll_ReverseConstructionOrder(t *testing.T) {
	var order []string
	mk := func(name string) container.Constructor {
		return func(container.Resolver) (any, error) {
			return &orderedService{name: name, order: &order}, nil
		}
	}
	c := container.NewContainer(container.NewServices().
		Singleton("first", mk("first")).
		Singleton("second", mk("second")).
		Singleton("third", mk("third")).
		Build())

	for _, key := range []string{"second", "first", "third"} {
		_, err := c.Resolve(key)
		require.NoError(t, err)
	}
	require.NoError(t, c.ReleaseAll())

	assert.Equal(t, []string{"third", "first", "second"}, order)
}

type orderedService struct {
	name  string
	order *[]string
}

func (s *orderedService) Dispose() { *s.order = append(*s.order, s.name) }

func TestContainer_ReleaseAll_JoinsCloseErrors(t *testing.T) {
	bad := &closerService{err: errors.New("flush failed")}
	good := &disposableService{}
	c := container.NewContainer(container.NewServices().
		Singleton("bad", func(container.Resolver) (any, error) { return bad, nil }).
		Singleton("good", func(container.Resolver) (any, error) { return good, nil }).
		Build())
	_, _ = c.Resolve("bad")
	_, _ = c.Resolve("good")

	err := c.ReleaseAll()

	require.Error(t, err)
	assert.ErrorIs(t, err, bad.err)
	assert.Contains(t, err.Error(), "release bad")
	assert.Equal(t, int32(1), good.disposeCalls.Load(), "one failure must not stop the teardown")
}

func TestContainer_ReleaseAll_SameInstanceUnderTwoKeysReleasedOnce(t *testing.T) {
	shared := &disposableService{}
	ctor := func(container.Resolver) (any, error) { return shared, nil }
	c := container.NewContainer(container.NewServices().Singleton("a", ctor).Singleton("b", ctor).Build())
	_, _ = c.Resolve("a")
	_, _ = c.Resolve("b")

	require.NoError(t, c.ReleaseAll())

	assert.Equal(t, int32(1), shared.disposeCalls.Load())
}

func TestContainer_ReleaseAll_SkipsExternalValues(t *testing.T) {
	external := &disposableService{}
	c := container.NewContainer(container.NewServices().Value("ext", external).Build())

	inst, err := c.Resolve("ext")
	require.NoError(t, err)
	assert.Same(t, external, inst)

	require.NoError(t, c.ReleaseAll())
	assert.Equal(t, int32(0), external.disposeCalls.Load())
}

func TestContainer_ReleaseAll_EmptyContainer(t *testing.T) {
	c := container.NewContainer(container.NewServices().Singleton("never", counting(new(atomic.Int32))).Build())
	assert.NoError(t, c.ReleaseAll())
}

func TestContainer_ResolveAfterRelease_AlreadyDisposed(t *testing.T) {
	c := container.NewContainer(container.NewServices().Singleton("svc", counting(new(atomic.Int32))).Build())
	_, _ = c.Resolve("svc")
	require.NoError(t, c.ReleaseAll())

	_, err := c.Resolve("svc")

	assert.ErrorIs(t, err, container.ErrAlreadyDisposed)
}

func TestContainer_ReleaseDuringConstruction_ReleasesLateInstance(t *testing.T) {
	late := &disposableService{}
	started := make(chan struct{})
	proceed := make(chan struct{})
	c := container.NewContainer(container.NewServices().Singleton("late", func(container.Resolver) (any, error) {
		close(started)
		<-proceed
		return late, nil
	}).Build())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Resolve("late")
		errCh <- err
	}()

	<-started
	require.NoError(t, c.ReleaseAll())
	close(proceed)

	assert.True(t, container.IsAlreadyDisposed(<-errCh))
	assert.Equal(t, int32(1), late.disposeCalls.Load())
}

// ── Observer ──────────────────────────────────────────────────────────────────

func TestContainer_Observer(t *testing.T) {
	obs := &recordingObserver{}
	c := container.NewContainer(container.NewServices().
		Singleton("ok", counting(new(atomic.Int32))).
		Singleton("fails", func(container.Resolver) (any, error) { return nil, errors.New("nope") }).
		Build(), container.WithObserver(obs))

	_, _ = c.Resolve("ok")
	_, _ = c.Resolve("ok")
	_, _ = c.Resolve("fails")
	_ = c.ReleaseAll()

	assert.Equal(t, []string{"ok"}, obs.constructed)
	assert.Equal(t, []string{"fails"}, obs.failed)
	assert.Equal(t, []string{"ok"}, obs.released)
}
