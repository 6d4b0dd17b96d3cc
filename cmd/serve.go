package cmd

import (
	"github.com/spf13/cobra"

	"github.com/km-arc/go-factory/framework/app"
)

var envFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the root application",
	Long: `Serve the root application on APP_PORT.

Configuration is read from the environment after loading the env files
(default: .env). Set METRICS_ENABLED=true to expose Prometheus metrics on
METRICS_PATH.

Examples:
  gofactory serve
  gofactory serve --env-file .env.local --env-file .env`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application := app.New(envFiles...)
		defer func() { _ = application.Dispose() }()
		return application.Run()
	},
}

func init() {
	serveCmd.Flags().StringArrayVarP(&envFiles, "env-file", "e", nil, "env file to load (can be repeated)")
	rootCmd.AddCommand(serveCmd)
}
