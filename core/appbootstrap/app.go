// Package appbootstrap wires configuration, storage and services into a
// runnable server.
package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incidentdesk/api"
	"incidentdesk/config"
	"incidentdesk/core/auth"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"

	"github.com/gofrs/uuid/v5"
)

type Options struct {
	// Argon2 overrides the password hashing cost; tests use cheap parameters.
	Argon2 *auth.Argon2Params
	// SkipMigrations leaves the schema to the caller.
	SkipMigrations bool
}

type App struct {
	cfg    *config.AppConfig
	db     *store.DB
	ownDB  bool
	comp   *runtimeComposition
	Server *api.Server
	logger *utils.Logger
}

// New opens the configured database and builds the application on it.
func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	app, err := Compose(ctx, cfg, db, Options{}, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.ownDB = true
	return app, nil
}

// Compose builds the application on an already opened database.
func Compose(ctx context.Context, cfg *config.AppConfig, db *store.DB, opts Options, logger *utils.Logger) (*App, error) {
	if !opts.SkipMigrations {
		if err := store.ApplyMigrations(ctx, db, logger); err != nil {
			return nil, err
		}
	}
	comp, err := composeRuntime(ctx, cfg, db, opts, logger)
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, db: db, comp: comp, logger: logger}
	if err := app.ensureSuperAdmin(ctx); err != nil {
		comp.close()
		return nil, err
	}
	app.Server = api.NewServer(cfg, comp.serverDeps, comp.workers, logger)
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

func (a *App) Close() {
	a.comp.close()
	if a.comp.serverDeps.Audit != nil {
		a.comp.serverDeps.Audit.Close()
	}
	if a.ownDB {
		_ = a.db.Close()
	}
}

// ensureSuperAdmin creates the configured superadmin on first start.
func (a *App) ensureSuperAdmin(ctx context.Context) error {
	b := a.cfg.Bootstrap
	email := utils.NormalizeEmail(b.AdminEmail)
	if email == "" || b.AdminPassword == "" {
		return nil
	}
	users := store.NewUsersStore(a.db)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}
	hash, salt, err := a.comp.hasher.Hash(b.AdminPassword)
	if err != nil {
		return err
	}
	username := strings.TrimSpace(b.AdminUsername)
	if username == "" {
		username = "superadmin"
	}
	now := utils.NowUTC()
	u := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		Role:         rbac.RoleSuperAdmin,
		Status:       store.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.logger.Printf("bootstrap superadmin created username=%s", username)
	return nil
}
