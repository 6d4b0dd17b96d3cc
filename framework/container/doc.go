// Package container provides registration sets and the scoped service
// container that backs every factory node.
//
// # Overview
//
// A Registrations set maps keys to construction rules. It is immutable once
// built; deriving a child scope copies the parent's set and lays overrides
// over it with Merge, so a parent never sees its children's registrations.
//
// A Container owns the instances built from one set. Every registration is a
// container-scoped singleton: it is constructed on the first Resolve of its
// key and cached until ReleaseAll. Keys that are never resolved are never
// constructed, and therefore never released.
//
// # Registering
//
//	s := container.NewServices()
//
//	// Owned singleton, released with the container
//	s.Singleton("db", func(r container.Resolver) (any, error) {
//	    return sql.Open("sqlite", ":memory:")
//	})
//
//	// Pre-built value the container never releases
//	s.Value("config", cfg)
//
//	// Tagged, for ResolveTagged
//	s.Singleton("report.cpu", newCPUReport, "reports")
//
//	regs := s.Build()
//
// # Resolving
//
//	c := container.NewContainer(regs)
//	raw, err := c.Resolve("db")
//
//	// Generic (preferred, no type assertion required)
//	db, err := container.Resolve[*sql.DB](c, "db")
//
// A constructor receives a Resolver scoped to the construction in progress.
// Resolving its own key through that Resolver, directly or through a chain of
// other constructors, fails with ErrReentrantConstruction.
//
// # Release
//
// Instances implementing Disposable or io.Closer are released by ReleaseAll,
// exactly once, in reverse construction order. A container is not reusable
// after ReleaseAll: every later Resolve fails with ErrAlreadyDisposed.
package container
