package repo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wa-cobranzas/internal/cache"
	"wa-cobranzas/internal/metrics"
	"wa-cobranzas/migrations"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend     string
	DatabaseURL string
	Schema      string
	SQLitePath  string
	Redis       cache.Config
	Metrics     *metrics.Metrics
}

// Open connects the configured backend, runs its migrations and wraps it with
// metrics.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	var store Store
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory, "":
		store = NewMemory()
	case BackendSQLite:
		s, err := NewSQLite(ctx, opts.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		files, err := migrations.Dialect(BackendSQLite)
		if err == nil {
			err = s.RunMigrations(ctx, files)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		store = s
	case BackendPostgres:
		s, err := NewPostgres(ctx, opts.DatabaseURL, opts.Schema, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		files, err := migrations.Dialect(BackendPostgres)
		if err == nil {
			err = s.RunMigrations(ctx, files)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		store = s
	case BackendRedis:
		r := cache.New(opts.Redis, logger)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		store = r
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	logger.Info("storage ready", "backend", opts.Backend)
	return Instrument(store, opts.Metrics), nil
}

// Instrument records operation counts and latency for a Store.
func Instrument(store Store, m *metrics.Metrics) Store {
	if m == nil {
		return store
	}
	return &instrumented{Store: store, metrics: m}
}

type instrumented struct {
	Store
	metrics *metrics.Metrics
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, found, err := i.Store.Get(ctx, key)
	i.observe("get", start, err)
	return v, found, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.Store.Set(ctx, key, value)
	i.observe("set", start, err)
	return err
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		i.metrics.Errors.WithLabelValues("repo").Inc()
	}
	i.metrics.StorageOps.WithLabelValues(op, status).Inc()
	i.metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
