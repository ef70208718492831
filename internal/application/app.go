// Package application wires configuration into a ready import service. The
// server and the CLI share it.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/PageImport/internal/config"
	"github.com/JonMunkholm/PageImport/internal/core"
	"github.com/JonMunkholm/PageImport/internal/pages"
	_ "github.com/JonMunkholm/PageImport/internal/pages/templates" // register built-in templates
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContainerTemplate is used for parent pages created on startup.
const ContainerTemplate = "basic-page"

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Store   pages.Store
	Files   *pages.DiskFiles
	Service *core.Service

	pool *pgxpool.Pool
}

// Open connects the configured store, prepares it and builds the service.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	switch strings.ToLower(cfg.Store.Backend) {
	case config.BackendMemory:
		slog.Warn("using in-memory page store; imported pages are lost on exit")
		app.Store = pages.NewMemoryStore()
	default:
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.pool = pool
		pg := pages.NewPgStore(pool)
		if cfg.Store.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		app.Store = pg
	}

	if err := pages.SeedReferenceParents(ctx, app.Store, ContainerTemplate); err != nil {
		app.Close()
		return nil, fmt.Errorf("seed reference parents: %w", err)
	}

	app.Files = pages.NewDiskFiles(cfg.Files.Root, cfg.Files.SourceDir, cfg.Files.MaxFileSize, cfg.Files.FetchTimeout)
	app.Service = core.NewService(app.Store, app.Files, core.NewServiceConfig(cfg.Import))

	slog.Info("templates registered", "count", len(pages.Templates()))
	return app, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
