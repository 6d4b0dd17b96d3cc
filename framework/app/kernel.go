package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/km-arc/go-factory/framework/config"
	"github.com/km-arc/go-factory/framework/container"
	"github.com/km-arc/go-factory/framework/factory"
	"github.com/km-arc/go-factory/framework/logging"
	"github.com/km-arc/go-factory/framework/metrics"
	"github.com/km-arc/go-factory/framework/providers"
	"github.com/km-arc/go-factory/framework/routing"
)

// Application is one node of an application tree: a factory carrying the
// framework registrations (config, router, metrics) plus whatever the caller
// added. Deriving from it yields an independently configured application
// whose container, router and services are its own.
type Application struct {
	*factory.Factory
	Config *config.Config
}

// New loads configuration from envFiles and creates a root application.
func New(envFiles ...string) *Application {
	return NewWithConfig(config.Load(envFiles...))
}

// NewWithConfig creates a root application from cfg. Extra providers run
// after the framework ones, so they may replace framework bindings.
func NewWithConfig(cfg *config.Config, extra ...container.ServiceProvider) *Application {
	logger := logging.New(cfg.Log, os.Stderr)
	opts := []factory.Option{factory.WithLogger(logger)}

	// Register framework core providers
	all := []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.RoutingServiceProvider{RequestLog: cfg.App.Debug},
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		opts = append(opts, factory.WithMetrics(m))
		all = append(all, &providers.MetricsServiceProvider{Metrics: m, Gatherer: reg})
	}
	all = append(all, extra...)

	return &Application{
		Factory: factory.New(container.Apply(all...), opts...),
		Config:  cfg,
	}
}

// WithServices derives a child application with extra or replacing
// registrations.
//
//	child, err := root.WithServices(func(s *container.Services) {
//	    s.Singleton("mailer", func(container.Resolver) (any, error) { return fakeMailer{}, nil })
//	})
func (a *Application) WithServices(configure func(s *container.Services)) (*Application, error) {
	child, err := a.Factory.WithServices(configure)
	if err != nil {
		return nil, err
	}
	return &Application{Factory: child, Config: a.Config}, nil
}

// Register derives a child application from providers.
func (a *Application) Register(ps ...container.ServiceProvider) (*Application, error) {
	child, err := a.Derive(container.Apply(ps...))
	if err != nil {
		return nil, err
	}
	return &Application{Factory: child, Config: a.Config}, nil
}

// Router resolves this node's router.
func (a *Application) Router() (*routing.Router, error) {
	return container.Resolve[*routing.Router](a, providers.KeyRouter)
}

// Handler returns this node's router as an http.Handler.
func (a *Application) Handler() (http.Handler, error) {
	r, err := a.Router()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run serves this node's router on the configured port until the server
// stops. It does not dispose the application.
func (a *Application) Run() error {
	h, err := a.Handler()
	if err != nil {
		return fmt.Errorf("resolve router: %w", err)
	}
	addr := ":" + a.Config.App.Port
	fmt.Printf("%s running on http://localhost%s  [%s]\n",
		a.Config.App.Name, addr, a.Config.App.Env)
	if err := http.ListenAndServe(addr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.Config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
