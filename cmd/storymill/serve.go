package main

import (
	"github.com/spf13/cobra"

	"github.com/storymill/storymill/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storymill server",
	Long: `Start the storymill HTTP server and queue worker.

The server provides:
  - /health        - Basic server health check
  - /api/projects  - Project status, packaging, and chapter operations
  - /api/queue     - Batch queue control
  - /ws            - Websocket progress stream

Examples:
  storymill serve                    # Start on the configured port (default 8787)
  storymill serve --port 3000        # Start on custom port
  storymill serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		services, err := buildServices(logger)
		if err != nil {
			return err
		}
		services.ConfigMgr.WatchConfig()

		go services.Hub.Run(ctx)
		go services.Queue.Run(ctx)

		cfg := services.ConfigMgr.Get()
		host := serveHost
		if host == "" {
			host = cfg.Server.Host
		}
		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv, err := server.New(server.Config{
			Host:     host,
			Port:     port,
			Services: services,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
