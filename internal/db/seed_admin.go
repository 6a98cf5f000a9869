package db

import (
	"context"
	"errors"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/repo/postgres"
	"github.com/geocoder89/authhub/internal/security"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser creates the initial admin account when ADMIN_EMAIL and
// ADMIN_PASSWORD are configured. Already-existing admin is left alone.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	users := postgres.NewUsersRepo(pool, nil)

	_, err := users.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, postgres.ErrUserNotFound) {
		return err
	}

	// seeding is rare enough to hash inline
	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = users.Create(ctx, cfg.AdminEmail, &hash, cfg.AdminName, user.RoleAdmin, user.ProviderLocal)

	if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
		// another instance seeded first
		return nil
	}

	return err
}
