package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/km-arc/go-factory/framework/app"
	"github.com/km-arc/go-factory/framework/app/apptest"
	"github.com/km-arc/go-factory/framework/container"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the derive and dispose walkthrough",
	Long: `Build a root application, derive two children that each register a
disposable service under the "disposable" tag, call every child over HTTP,
then dispose the root and report how many services were released.

The final factory tree is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

type demoService struct {
	name     string
	disposed atomic.Bool
}

func (s *demoService) Dispose() { s.disposed.Store(true) }

func demoSingleton(name string) container.Constructor {
	return func(container.Resolver) (any, error) {
		return &demoService{name: name}, nil
	}
}

func runDemo(out io.Writer) error {
	root := apptest.NewApplication(nil)

	first, err := root.WithServices(func(s *container.Services) {
		s.Singleton("disposable#1", demoSingleton("disposable#1"), "disposable")
	})
	if err != nil {
		return err
	}
	second, err := first.WithServices(func(s *container.Services) {
		s.Singleton("disposable#2", demoSingleton("disposable#2"), "disposable")
	})
	if err != nil {
		return err
	}

	var services []*demoService
	for _, node := range []*app.Application{first, second} {
		body, err := fetch(node, "/")
		if err != nil {
			return err
		}
		tagged, err := node.ResolveTagged("disposable")
		if err != nil {
			return err
		}
		for _, t := range tagged {
			services = append(services, t.(*demoService))
		}
		fmt.Fprintf(out, "factory %s (depth %d): GET / -> %q, %d disposable services\n",
			node.ID(), node.Depth(), body, len(tagged))
	}

	if err := root.Dispose(); err != nil {
		return fmt.Errorf("dispose root: %w", err)
	}

	disposed := 0
	for _, s := range services {
		if s.disposed.Load() {
			disposed++
		}
	}
	fmt.Fprintf(out, "constructed %d, disposed %d\n", len(services), disposed)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(root.Snapshot())
}

func fetch(a *app.Application, path string) (string, error) {
	srv, err := apptest.Serve(a)
	if err != nil {
		return "", err
	}
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
