// Package apptest runs applications in-process for tests.
//
// Every application node gets its own httptest server, registered as a
// disposable singleton of that node. Disposing the node, or any ancestor,
// closes the server together with every other service the node built.
//
//	root := apptest.NewApplication(nil)
//	defer root.Dispose()
//
//	child, _ := root.WithServices(func(s *container.Services) {
//	    s.Singleton("clock", newFakeClock)
//	})
//	srv, _ := apptest.Serve(child)
//	resp, _ := srv.Client().Get(srv.URL + "/")
package apptest

import (
	"net/http/httptest"

	"github.com/km-arc/go-factory/framework/app"
	"github.com/km-arc/go-factory/framework/config"
	"github.com/km-arc/go-factory/framework/container"
	"github.com/km-arc/go-factory/framework/providers"
	"github.com/km-arc/go-factory/framework/routing"
)

// ServerKey is the key the test server is bound under.
const ServerKey = "apptest.server"

// Server is a running in-process server for one application node.
type Server struct {
	*httptest.Server
}

// Dispose shuts the server down.
func (s *Server) Dispose() { s.Server.Close() }

// Provider binds ServerKey. The server is started on first resolve and
// serves the resolving node's router.
var Provider = container.ProviderFunc(func(s *container.Services) {
	s.Singleton(ServerKey, func(r container.Resolver) (any, error) {
		router, err := container.Resolve[*routing.Router](r, providers.KeyRouter)
		if err != nil {
			return nil, err
		}
		return &Server{Server: httptest.NewServer(router)}, nil
	})
})

// Config returns a configuration suitable for tests: testing environment,
// warnings and errors only, no request log, no metrics.
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "GoFactory", Env: "testing", Port: "0"},
		Log: config.LogConfig{Level: "warn", Format: "text"},
		Metrics: config.MetricsConfig{
			Path: "/metrics",
		},
	}
}

// NewApplication creates a root application with Provider registered. A nil
// cfg means Config().
func NewApplication(cfg *config.Config, extra ...container.ServiceProvider) *app.Application {
	if cfg == nil {
		cfg = Config()
	}
	return app.NewWithConfig(cfg, append([]container.ServiceProvider{Provider}, extra...)...)
}

// Serve returns the test server of a, starting it on first call.
func Serve(a *app.Application) (*Server, error) {
	return container.Resolve[*Server](a, ServerKey)
}
