// Package factory implements derived container factories.
//
// A root Factory is created over a registration set. Derive (or
// WithServices) produces a child factory whose set is the parent's with
// overrides laid over it; the child is owned by the parent. Every factory
// lazily builds its own container on first Resolve, so two siblings that
// resolve the same key get two distinct instances.
//
// # Cascading disposal
//
// Dispose on any factory walks its subtree post-order: descendants first,
// then the factory's own container. Each constructed instance that
// implements container.Disposable or io.Closer is released exactly once,
// however many levels separate it from the factory being disposed.
// Disposing twice is a no-op.
//
//	root := factory.New(nil)
//	d1, _ := root.WithServices(func(s *container.Services) {
//	    s.Singleton("svc", newService)
//	})
//	d2, _ := d1.WithServices(func(s *container.Services) {
//	    s.Singleton("svc", newService)
//	})
//	_, _ = d1.Resolve("svc")
//	_, _ = d2.Resolve("svc")
//
//	_ = root.Dispose() // releases both instances
//
// Once disposal of a factory starts, Resolve, ResolveTagged, Container and
// Derive on it or any descendant fail with container.ErrAlreadyDisposed.
package factory
