package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/rankgrid/internal/config"
	"github.com/rendis/rankgrid/internal/engine/cache"
	"github.com/rendis/rankgrid/internal/engine/geo"
	"github.com/rendis/rankgrid/internal/engine/oracle"
	"github.com/rendis/rankgrid/internal/engine/resource"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/metrics"
)

// engine is everything a command needs to scan and store.
type engine struct {
	Scanner  *scanner.Scanner
	Store    *resource.Handle[*storage.Store]
	Geocoder *geo.Geocoder

	closers []func() error
}

// Close releases resources in reverse order of creation.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

// buildEngine wires Maps oracle -> optional redis cache -> scanner, plus the
// lazily opened history store.
func buildEngine(ctx context.Context, cfg *config.Config, logger logging.Logger, rec *metrics.Recorder) (*engine, error) {
	e := &engine{Geocoder: geo.NewGeocoder(cfg.GeocoderURL)}

	maps := oracle.NewMaps(oracle.MapsConfig{
		Lang:            cfg.OracleLang,
		Zoom:            cfg.OracleZoom,
		ProxyURL:        cfg.OracleProxyURL,
		Timeout:         cfg.OracleTimeout(),
		MaxRetries:      cfg.OracleMaxRetries,
		CompetitorLimit: cfg.OracleCompetitorLimit,
	}, oracle.WithMapsLogger(logger))
	e.closers = append(e.closers, maps.Close)

	var o oracle.Oracle = maps
	if cfg.RedisAddr != "" {
		client, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			// a cache outage must not block scanning
			logger.Warn("redis unavailable, scanning without cache",
				logging.String("addr", cfg.RedisAddr), logging.Err(err))
		} else {
			rc := cache.NewRedis(client, cache.WithLogger(logger))
			e.closers = append(e.closers, rc.Close)
			o = oracle.NewCached(maps, rc, cfg.CacheTTL(),
				oracle.WithCacheLogger(logger),
				oracle.WithCacheMetrics(rec),
			)
		}
	}

	e.Scanner = scanner.New(o,
		scanner.WithDelay(cfg.ScanDelay()),
		scanner.WithCellTimeout(cfg.CellTimeout()),
		scanner.WithLogger(logger),
		scanner.WithMetrics(rec),
	)

	dbPath := cfg.DBPath
	e.Store = resource.New(func(context.Context) (*storage.Store, error) {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return storage.NewStore(dbPath)
	}, (*storage.Store).Close)
	e.closers = append(e.closers, e.Store.Close)

	return e, nil
}

// openStore opens the history database directly, for commands that only read it.
func openStore(cfg *config.Config) (*storage.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return store, nil
}
