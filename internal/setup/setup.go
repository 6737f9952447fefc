// Package setup wires configuration into the stores, clients and
// collaborators shared by the binaries.
package setup

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lexlink/internal/config"
	"github.com/OFFIS-RIT/lexlink/internal/metrics"
	"github.com/OFFIS-RIT/lexlink/internal/migrate"
	"github.com/OFFIS-RIT/lexlink/internal/storage"
	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/graph"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"
	"github.com/OFFIS-RIT/lexlink/pkg/logger/console"
	"github.com/OFFIS-RIT/lexlink/pkg/logger/diagnostic"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
	"github.com/OFFIS-RIT/lexlink/pkg/store/memory"
	pgstore "github.com/OFFIS-RIT/lexlink/pkg/store/pgx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// InitLogger installs the console logger and, when configured, the
// diagnostic JSONL sink. The returned func flushes and closes the sinks.
func InitLogger(cfg config.Config, prefix string) (func(), error) {
	instances := []logger.LoggerInstance{
		console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  cfg.Debug,
			Prefix: prefix,
		}),
	}
	if cfg.DiagnosticLog != "" {
		d, err := diagnostic.Open(cfg.DiagnosticLog)
		if err != nil {
			return nil, err
		}
		instances = append(instances, d)
	}
	logger.Init(instances...)
	return func() {
		if err := logger.Close(); err != nil {
			logger.Error("Failed to close logger", "err", err)
		}
	}, nil
}

// Deps holds everything a linkage process needs.
type Deps struct {
	Store     store.LegislationStorage
	Profiles  *country.Registry
	Countries []common.Country
	Client    *graph.GraphClient
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
}

// Build opens the configured store, runs migrations when asked to and
// assembles the graph client. Close releases what Build opened.
func Build(ctx context.Context, cfg config.Config) (*Deps, error) {
	profiles := country.Defaults()
	countries, err := profiles.Parse(cfg.Countries)
	if err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, errors.New("no countries selected")
	}

	d := &Deps{
		Profiles:  profiles,
		Countries: countries,
		Registry:  prometheus.NewRegistry(),
	}
	d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.Metrics = metrics.New(d.Registry)

	var locker leaselock.Locker
	switch cfg.Store {
	case "memory":
		logger.Warn("Using in-memory store, results are discarded on exit")
		d.Store = memory.New()
	default:
		if cfg.Migrate {
			if err := migrate.Up(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.Store = pg
		locker = leaselock.NewPostgres(pg.Pool())
	}

	var loader extract.MaterialLoader
	switch cfg.Material {
	case "s3":
		client, err := storage.NewS3Client(ctx, cfg.AWS)
		if err != nil {
			d.Close()
			return nil, err
		}
		loader = storage.NewMaterialLoader(client, cfg.AWS)
	case "fs":
		loader = storage.NewDirLoader(cfg.MaterialDir)
	}

	d.Client, err = graph.NewGraphClient(graph.NewGraphClientParams{
		Store:    d.Store,
		Profiles: profiles,
		Loader:   loader,
		Locker:   locker,
		Lease: leaselock.Options{
			TTL:  cfg.LeaseTTL,
			Wait: cfg.LeaseWait,
		},
		PageSize:     cfg.PageSize,
		Workers:      cfg.Workers,
		PageRetries:  cfg.PageRetries,
		RetryBackoff: cfg.RetryBackoff,
		Recorder:     d.Metrics,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	logger.Info("Linkage configured",
		"store", cfg.Store,
		"countries", countries,
		"material", cfg.Material,
		"page_size", cfg.PageSize,
		"workers", cfg.Workers,
	)
	return d, nil
}

func (d *Deps) Close() {
	if d.Store != nil {
		d.Store.Close()
	}
}
