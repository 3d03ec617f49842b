package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/internal/server"
)

var (
	servePort int
	serveCORS bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve exposes the engine over HTTP: resolved views, scope reads and
writes, backups, bulk operations and a server-sent event stream of
configuration changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 7410, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", true, "Enable CORS")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	eng, err := newEngine(true)
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg := server.DefaultConfig()
	cfg.Port = servePort
	if !cmd.Flags().Changed("port") && settings.Port != 0 {
		cfg.Port = settings.Port
	}
	cfg.EnableCORS = serveCORS

	srv := server.New(cfg, eng)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
