package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wayfocus/wayfocus/internal/api"
	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/store"
	"github.com/wayfocus/wayfocus/internal/window"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the focus tracking daemon with the HTTP API",
	Long: `Track the focused window and expose it over HTTP: a snapshot at
/api/window/current and a WebSocket stream at /api/window/stream. When a
PostgreSQL DSN is configured, every focus transition is also recorded.`,
	Example: `  # Serve on the default port
  wayfocus serve

  # Serve on a custom port with focus history
  wayfocus serve --port 9090 --postgres-dsn postgres://localhost/wayfocus`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL DSN for focus history")
	viper.BindPFlag("server_port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("postgres_dsn", serveCmd.Flags().Lookup("postgres-dsn"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	mgr, err := window.NewManager(cfg.Backend, cfg.Socket)
	if err != nil {
		return fmt.Errorf("failed to initialize focus backend: %w", err)
	}
	defer mgr.Stop()

	var history *store.Client
	if cfg.PostgresDSN != "" {
		history, err = store.NewClient(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to open focus history store: %w", err)
		}
		defer history.Close()

		events := mgr.Subscribe()
		defer mgr.Unsubscribe(events)
		go func() {
			for ev := range events {
				if err := history.RecordFocus(context.Background(), ev); err != nil {
					log.Warn().Err(err).Msg("failed to record focus event")
				}
			}
		}()
	}

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("failed to start focus watch: %w", err)
	}

	server := api.NewServer(mgr)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("backend", mgr.BackendName()).
		Msg("wayfocus serving")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return nil
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}
