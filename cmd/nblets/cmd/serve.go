package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensoc/notebooklets/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the notebooklet catalog over HTTP",
	Long: `Start the HTTP API: catalog listing and search, notebooklet detail
and run execution, health and optional Prometheus metrics endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfigOrDefaults(cfgFile)
	if err != nil {
		return err
	}

	// API runs never render locally; results go back as JSON.
	env, err := buildEnvironment(log, cfg, true)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(log)
	if err != nil {
		return err
	}

	svc := server.NewService(log, cfg.Server, cfg.Observability.MetricsEnabled, reg, env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return svc.Stop(shutdownCtx)
}
