package main

import (
	"context"
	"fmt"
	"io"

	"sismed/internal/backup"
	"sismed/internal/blob"
	blobfs "sismed/internal/blob/fs"
	blobs3 "sismed/internal/blob/s3"
	"sismed/internal/config"
	"sismed/internal/facade"
	"sismed/internal/metrics"
	"sismed/internal/repository/sqlite"
	"sismed/internal/service"

	"github.com/rs/zerolog"
)

// app holds the wired application for one CLI invocation
type app struct {
	cfg      *config.Config
	cfgPath  string
	log      zerolog.Logger
	repo     *sqlite.Repository
	bus      *service.EventBus
	metrics  *metrics.Metrics
	services facade.Services
	facade   *facade.Facade
}

// loadConfig resolves the config file and applies flag overrides
func loadConfig(opts *globalOptions) (*config.Config, string, error) {
	cfg, path, err := config.Load(opts.configPath)
	if err != nil {
		return nil, path, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// newApp opens the store and builds every service, logging to logOut.
// Close releases the store.
func newApp(ctx context.Context, opts *globalOptions, logOut io.Writer) (*app, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debug().Str("config", path).Msg("config loaded")
	}

	repo, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		// fatal level without exiting; main reports the error and exits 1
		log.WithLevel(zerolog.FatalLevel).Err(err).Str("path", cfg.Database.Path).Msg("cannot open store")
		return nil, err
	}
	log.Debug().Str("path", repo.Path()).Msg("database opened")

	local, err := blobfs.New("")
	if err != nil {
		repo.Close()
		return nil, err
	}

	bus := service.NewEventBus()
	m := metrics.New()
	services := facade.Services{
		Records:   service.NewRecordsService(repo, bus, log),
		Documents: service.NewDocumentService(log),
		Backups: service.NewBackupService(repo, service.BackupConfig{
			Local:  local,
			OpenS3: s3Opener(cfg.Backup.S3),
			Sealer: backup.NewSealer(cfg.Backup.Passphrase),
		}, bus, log),
		Catalog: service.NewCatalogService(repo, bus, log),
	}

	return &app{
		cfg:      cfg,
		cfgPath:  path,
		log:      log,
		repo:     repo,
		bus:      bus,
		metrics:  m,
		services: services,
		facade:   facade.New(services, m),
	}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// s3Opener builds an S3 store for whichever bucket a backup location names
func s3Opener(c config.S3Config) service.S3Opener {
	return func(ctx context.Context, bucket string) (blob.Store, error) {
		store, err := blobs3.New(ctx, blobs3.Config{
			Region:          c.Region,
			Bucket:          bucket,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			PathStyle:       c.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
