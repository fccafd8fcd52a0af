package store

import (
	"context"
	"fmt"

	"github.com/multichat/chatproxy/internal/config"
	log "github.com/sirupsen/logrus"
)

// Open builds the profile store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (ProfileStore, error) {
	switch cfg.Driver {
	case config.StoreDriverPostgres:
		s, err := NewPostgresStore(ctx, cfg.DSN, cfg.Schema)
		if err != nil {
			return nil, err
		}
		log.Info("profile store: postgres")
		return s, nil
	case "", config.StoreDriverSQLite:
		s, err := NewSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Infof("profile store: sqlite (%s)", cfg.Path)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
