package providers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/go-factory/framework/config"
	"github.com/km-arc/go-factory/framework/container"
	gohttp "github.com/km-arc/go-factory/framework/http"
	"github.com/km-arc/go-factory/framework/metrics"
	"github.com/km-arc/go-factory/framework/routing"
)

// Keys bound by the framework providers.
const (
	KeyConfig         = "config"
	KeyRouter         = "router"
	KeyMetrics        = "metrics"
	KeyMetricsHandler = "metrics.handler"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the loaded configuration.
//
// Bound keys:
//   - "config"  → *config.Config (shared by the whole tree, never released)
type ConfigServiceProvider struct {
	Config *config.Config
}

func (p *ConfigServiceProvider) Register(s *container.Services) {
	s.Value(KeyConfig, p.Config)
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router. Each factory node that
// resolves it builds its own router.
//
// Bound keys:
//   - "router"  → *routing.Router
//
// Routes:
//   - GET /         → "Hello World!"
//   - GET /healthz  → {"data": {"app": ..., "env": ...}}; ?verbose adds
//     "debug" and "metrics"
//   - metrics path  → Prometheus exposition, when "metrics.handler" is bound
type RoutingServiceProvider struct {
	RequestLog bool
}

func (p *RoutingServiceProvider) Register(s *container.Services) {
	requestLog := p.RequestLog
	s.Singleton(KeyRouter, func(r container.Resolver) (any, error) {
		cfg, err := container.Resolve[*config.Config](r, KeyConfig)
		if err != nil {
			return nil, err
		}

		var opts []routing.Option
		if requestLog {
			opts = append(opts, routing.WithRequestLog())
		}
		router := routing.New(opts...)

		router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			gohttp.NewResponse(w).Text(http.StatusOK, "Hello World!")
		})
		router.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			body := map[string]any{
				"app": cfg.App.Name,
				"env": cfg.App.Env,
			}
			if gohttp.NewRequest(req).Bool("verbose") {
				body["debug"] = cfg.App.Debug
				body["metrics"] = cfg.Metrics.Enabled
			}
			gohttp.NewResponse(w).Success(body)
		})

		h, err := container.Resolve[http.Handler](r, KeyMetricsHandler)
		switch {
		case err == nil:
			router.Mount(cfg.Metrics.Path, h)
		case !container.IsUnknownKey(err):
			return nil, err
		}
		return router, nil
	})
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider exposes the Prometheus collectors of the tree.
//
// Bound keys:
//   - "metrics"          → *metrics.Metrics
//   - "metrics.handler"  → http.Handler serving Gatherer
type MetricsServiceProvider struct {
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func (p *MetricsServiceProvider) Register(s *container.Services) {
	s.Value(KeyMetrics, p.Metrics)
	s.Value(KeyMetricsHandler, promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
}
