package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/connections"
	"github.com/deepgram/parley/internal/handlers"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/services/history"
	"github.com/deepgram/parley/internal/services/responder"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			interval, _ := cmd.Flags().GetDuration("cleanup-interval")

			return serve(cmd.Context(), cfg.Server, interval)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides SERVER_ADDR)")
	cmd.Flags().Duration("cleanup-interval", 10*time.Minute, "how often idle sessions are dropped")
	return cmd
}

// backend is the development server with the services behind it.
type backend struct {
	server      *http.Server
	history     *history.Service
	connections *connections.Manager
}

func newBackend(cfg config.ServerConfig, cleanupInterval time.Duration) *backend {
	hist := history.NewService(config.GetSessionSecret(), cfg.SessionTimeout)
	conns := connections.NewManager(connections.DefaultTimeouts)
	h := handlers.NewHandler(hist, responder.New(cfg), conns, handlers.Options{
		Version:         version,
		CleanupInterval: cleanupInterval,
	})

	return &backend{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handlers.NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		history:     hist,
		connections: conns,
	}
}

func serve(ctx context.Context, cfg config.ServerConfig, cleanupInterval time.Duration) error {
	b := newBackend(cfg, cleanupInterval)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("component", logger.APP).Str("addr", b.server.Addr).Str("version", version).Msg("Server starting")
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return b.history.RunCleanup(ctx, cleanupInterval)
	})

	g.Go(func() error {
		<-ctx.Done()
		return b.shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Str("component", logger.APP).Err(err).Msg("Server stopped with error")
		return err
	}
	log.Info().Str("component", logger.APP).Msg("Server exiting")
	return nil
}

func (b *backend) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	closed := b.connections.CloseAll("server shutting down")
	log.Info().Str("component", logger.APP).Int("websockets", closed).Msg("Shutting down server")

	return b.server.Shutdown(shutdownCtx)
}
