package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"sheettracker/api/internal/app"
	"sheettracker/api/internal/blob"
	"sheettracker/api/internal/cache"
	"sheettracker/api/internal/config"
	"sheettracker/api/internal/history"
	"sheettracker/api/internal/sheet"
	"sheettracker/api/internal/store"
)

// backend is the configured persister plus whatever that storage can offer
// the HTTP layer: readiness checks and version history.
type backend struct {
	persister sheet.Persister
	history   app.HistorySource
	checks    map[string]app.Pinger
	closers   []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (*backend, error) {
	b := &backend{checks: map[string]app.Pinger{}}

	switch cfg.Backend {
	case config.BackendFile:
		p := sheet.NewFilePersister(cfg.DataPath)
		b.persister = p
		b.checks["storage"] = app.PingFunc(func(context.Context) error {
			dir := filepath.Dir(p.Path())
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			_, err := os.Stat(dir)
			return err
		})

	case config.BackendPostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, log)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			log.Info().Strs("versions", applied).Msg("applied migrations")
		}
		p := store.NewPostgresPersister(db, store.DefaultSlot)
		b.persister = p
		b.history = postgresHistory(p)
		b.checks["database"] = app.PingFunc(db.PingContext)

	case config.BackendRedis:
		p, err := cache.NewRedisPersister(cfg.Redis.URL, cfg.Redis.Key, cfg.Redis.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		b.closers = append(b.closers, p.Close)
		b.persister = p
		b.checks["redis"] = p

	case config.BackendGit:
		p := history.NewGitPersister(cfg.Git.Dir, cfg.Git.Author)
		b.persister = p
		b.history = gitHistory(p)
		b.checks["repository"] = app.PingFunc(func(context.Context) error {
			_, err := os.Stat(p.Dir())
			return err
		})

	case config.BackendS3:
		p, err := blob.NewObjectPersister(blob.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Object:    cfg.S3.Object,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := p.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		b.persister = p
		b.checks["object_storage"] = p

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return b, nil
}

func postgresHistory(p *store.PostgresPersister) app.HistoryFunc {
	return func(ctx context.Context, limit int) ([]app.HistoryEntry, error) {
		revisions, err := p.Revisions(ctx, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]app.HistoryEntry, 0, len(revisions))
		for _, rev := range revisions {
			entries = append(entries, app.HistoryEntry{
				Revision: strconv.FormatInt(rev.Number, 10),
				SavedAt:  rev.SavedAt,
			})
		}
		return entries, nil
	}
}

func gitHistory(p *history.GitPersister) app.HistoryFunc {
	return func(ctx context.Context, limit int) ([]app.HistoryEntry, error) {
		commits, err := p.History(ctx, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]app.HistoryEntry, 0, len(commits))
		for _, c := range commits {
			entries = append(entries, app.HistoryEntry{
				Revision: c.Hash,
				Message:  c.Message,
				Author:   c.Author,
				SavedAt:  c.CreatedAt,
			})
		}
		return entries, nil
	}
}
