package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/snapcache/internal/server"
	pmet "github.com/IvanBrykalov/snapcache/metrics/prom"
)

const shutdownTimeout = 10 * time.Second

func buildServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over HTTP with Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				a.cfg.HTTP.ListenAddr = addr
			}

			reg := prometheus.NewRegistry()
			c, err := a.open(pmet.New(reg, "snapcache", "server", nil))
			if err != nil {
				return err
			}
			defer a.close(c)

			metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
			srv := server.NewHTTPServer(a.cfg.HTTP.ListenAddr, server.New(c, a.log, metrics))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.log.Sugar().Infow("listening", "addr", srv.Addr, "snapshot", a.cfg.Cache.SnapshotPath)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Sugar().Infow("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address (overrides http.listen_addr)")
	return cmd
}
