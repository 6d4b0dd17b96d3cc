package container

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider contributes registrations to a Services collection.
//
// Providers only declare construction rules. Nothing is built while a
// provider runs; every service is constructed lazily by the container of
// whichever factory resolves it first.
//
//	type CacheProvider struct{}
//
//	func (CacheProvider) Register(s *container.Services) {
//	    s.Singleton("cache", func(r container.Resolver) (any, error) {
//	        cfg, err := container.Resolve[*config.Config](r, "config")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return cache.New(cfg), nil
//	    })
//	}
type ServiceProvider interface {
	Register(s *Services)
}

// ProviderFunc adapts a plain function to ServiceProvider.
type ProviderFunc func(s *Services)

func (f ProviderFunc) Register(s *Services) { f(s) }

// ── Applying providers ────────────────────────────────────────────────────────

// Apply runs providers in order against a fresh collection and seals it.
// A later provider registering a key already registered by an earlier one
// replaces it. The same provider value is applied only once.
func Apply(providers ...ServiceProvider) *Registrations {
	s := NewServices()
	seen := make(map[ServiceProvider]bool, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		if isComparable(p) {
			if seen[p] {
				continue
			}
			seen[p] = true
		}
		p.Register(s)
	}
	return s.Build()
}
