package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nx-ipc/demo"
	"nx-ipc/sm"
)

func newServeCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run sm and the demo service until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metricsAddr != "" {
				a.cfg.Metrics.Addr = metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on (overrides metrics.addr)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	s, err := newStack(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.manager.Serve(ctx)
	})

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Info("serving metrics", zap.String("addr", addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := s.publishDemo(ctx); err != nil {
			return err
		}
		a.logger.Info("ready",
			zap.Stringer("version", s.version),
			zap.Stringer("sm", sm.ProtocolFor(s.version)),
			zap.String("service", demo.ServiceName),
		)
		return nil
	})

	return g.Wait()
}
