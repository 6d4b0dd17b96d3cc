package container

import "fmt"

// ── Registration types ───────────────────────────────────────────────────────

// Resolver resolves other services from the container a constructor is
// running in.
type Resolver interface {
	Resolve(key string) (any, error)
}

// Constructor builds a concrete value. It may resolve other keys through r
// but must never resolve its own key.
type Constructor func(r Resolver) (any, error)

// Lifetime is the lifetime policy of a registration.
type Lifetime int

const (
	// Singleton means at most one instance per container, built on first resolve.
	Singleton Lifetime = iota
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	default:
		return "unknown"
	}
}

// Registration is a construction rule for one key.
type Registration struct {
	Key         string
	Constructor Constructor
	Lifetime    Lifetime
	Tags        []string

	// External marks an instance the container does not own. It is cached
	// like any singleton but never released.
	External bool
}

// ── Registrations ────────────────────────────────────────────────────────────

// Registrations is an immutable, insertion-ordered set of registrations.
// A nil *Registrations behaves as an empty set.
type Registrations struct {
	order   []string
	entries map[string]Registration
}

// NewRegistrations builds a set from entries. A repeated key replaces the
// earlier entry in place.
func NewRegistrations(entries ...Registration) *Registrations {
	r := &Registrations{entries: make(map[string]Registration, len(entries))}
	for _, e := range entries {
		r.put(e)
	}
	return r
}

func (r *Registrations) put(e Registration) {
	if e.Constructor == nil {
		panic(fmt.Sprintf("container: nil constructor for [%s]", e.Key))
	}
	if _, exists := r.entries[e.Key]; !exists {
		r.order = append(r.order, e.Key)
	}
	e.Tags = append([]string(nil), e.Tags...)
	r.entries[e.Key] = e
}

// Lookup returns the registration for key.
func (r *Registrations) Lookup(key string) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}
	e, ok := r.entries[key]
	return e, ok
}

// Has reports whether key is registered.
func (r *Registrations) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns the registered keys in registration order.
func (r *Registrations) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Len returns the number of registrations.
func (r *Registrations) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Tagged returns the keys carrying tag, in registration order.
func (r *Registrations) Tagged(tag string) []string {
	if r == nil {
		return nil
	}
	var keys []string
	for _, k := range r.order {
		for _, t := range r.entries[k].Tags {
			if t == tag {
				keys = append(keys, k)
				break
			}
		}
	}
	return keys
}

// Merge returns a new set: a copy of r with overrides laid over it. An
// override of an existing key keeps that key's position; new keys are
// appended. Neither r nor overrides is modified.
func (r *Registrations) Merge(overrides *Registrations) *Registrations {
	merged := &Registrations{entries: make(map[string]Registration, r.Len()+overrides.Len())}
	if r != nil {
		for _, k := range r.order {
			merged.put(r.entries[k])
		}
	}
	if overrides != nil {
		for _, k := range overrides.order {
			merged.put(overrides.entries[k])
		}
	}
	return merged
}

// ── Services builder ─────────────────────────────────────────────────────────

// Services collects registrations before they are sealed into a
// Registrations set. Providers and derive callbacks write into it.
//
//	s := container.NewServices()
//	s.Singleton("cache", func(r container.Resolver) (any, error) {
//	    return cache.NewMemory(), nil
//	})
//	regs := s.Build()
type Services struct {
	order   []string
	entries map[string]Registration
}

// NewServices creates an empty collection.
func NewServices() *Services {
	return &Services{entries: make(map[string]Registration)}
}

// Singleton registers a container-scoped singleton. Registering the same key
// again in one collection replaces the previous rule.
func (s *Services) Singleton(key string, ctor Constructor, tags ...string) *Services {
	return s.add(Registration{Key: key, Constructor: ctor, Lifetime: Singleton, Tags: tags})
}

// Value registers a pre-built instance the container does not own. Every
// container that inherits the registration hands out the same v, and v is
// never released by any of them.
func (s *Services) Value(key string, v any, tags ...string) *Services {
	return s.add(Registration{
		Key:         key,
		Constructor: func(Resolver) (any, error) { return v, nil },
		Lifetime:    Singleton,
		Tags:        tags,
		External:    true,
	})
}

func (s *Services) add(e Registration) *Services {
	if e.Constructor == nil {
		panic(fmt.Sprintf("container: nil constructor for [%s]", e.Key))
	}
	if _, exists := s.entries[e.Key]; !exists {
		s.order = append(s.order, e.Key)
	}
	s.entries[e.Key] = e
	return s
}

// Len returns the number of collected registrations.
func (s *Services) Len() int { return len(s.order) }

// Build seals the collection into an immutable set.
func (s *Services) Build() *Registrations {
	entries := make([]Registration, 0, len(s.order))
	for _, k := range s.order {
		entries = append(entries, s.entries[k])
	}
	return NewRegistrations(entries...)
}
