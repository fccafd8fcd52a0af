package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/multichat/chatproxy/internal/api"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long in-flight streams may run after a stop
// signal.
const ShutdownTimeout = 30 * time.Second

// StartService runs the API server until ctx is cancelled, reloading
// configuration from configPath when it changes. An empty configPath
// disables the watcher.
func StartService(ctx context.Context, cfg *config.Config, configPath string, profiles store.ProfileStore, opts ...api.ServerOption) error {
	server := api.NewServer(cfg, profiles, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start()
	})
	if configPath != "" {
		g.Go(func() error {
			if err := config.Watch(gctx, configPath, server.UpdateClients); err != nil {
				log.Warnf("configuration hot reload disabled: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		log.Info("shutting down API server")
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("API server exited")
	return nil
}
