package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/appvolume-shm/pkg/plugin"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves metrics and health checks of the shared state",
	Long: `Serves /metrics, /live and /ready until interrupted. Changes made by
any process are printed to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := driver.Initialize(ctx); err != nil {
			return err
		}
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		health := driver.HealthHandler()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/live", health.LiveEndpoint)
		mux.HandleFunc("/ready", health.ReadyEndpoint)

		out := cmd.ErrOrStderr()
		if _, err := driver.Watch(ctx, func(e plugin.Event) {
			fmt.Fprintf(out, "generation %d: %s %s gain:%.3f muted:%t\n",
				e.Generation, e.Kind, e.Volume.Identifier, e.Volume.Gain, e.Volume.Muted)
		}); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              viper.GetString("listen"),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		fmt.Fprintf(out, "serving %s on %s\n", driver.Path(), srv.Addr)

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
