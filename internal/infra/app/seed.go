package app

import (
	"context"
	"fmt"

	"github.com/213020aumc/matcha/internal/infra/config"
	"github.com/213020aumc/matcha/internal/infra/database"
	kafkainfra "github.com/213020aumc/matcha/internal/infra/kafka"
	"github.com/213020aumc/matcha/internal/infra/logger"
	postgresrepo "github.com/213020aumc/matcha/internal/repository/postgres"
	"github.com/213020aumc/matcha/internal/usecase"
)

// Seed migrates the schema and installs the permission catalog, system roles and default
// settings. Running it again is safe.
func Seed(ctx context.Context, cfg *config.AppConfig) error {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if err := database.RunMigrations(cfg.Postgres.DSN(), log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pool.Close()

	store := postgresrepo.NewStore(pool, log)
	repos := store.Repositories().Ports()
	authorizer := usecase.NewAuthorizer(repos.Users, repos.Roles)

	rbac := usecase.NewRBACService(store, repos, authorizer, kafkainfra.NewStubPublisher(log), cfg.RBAC.StrictPermissionSlugs, log)
	if err := rbac.SyncCatalog(ctx, cfg.RBAC.BootstrapAdminEmail); err != nil {
		return fmt.Errorf("sync rbac catalog: %w", err)
	}

	settings := usecase.NewSettingsService(store, repos, authorizer, log)
	if err := settings.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	log.Info("seed completed")
	return nil
}
