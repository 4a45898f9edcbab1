package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/userdir/internal/config"
	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/security"
)

// EnsureAdminUser creates the bootstrap admin from config. An existing user
// with that email wins, and the call is a no-op when ADMIN_EMAIL is unset.
func EnsureAdminUser(ctx context.Context, repo user.Repository, hasher *security.Hasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	hash, err := hasher.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	u := user.NewFromCreateRequest(user.CreateUserRequest{
		FirstName: cfg.AdminFirstName,
		LastName:  cfg.AdminLastName,
		Email:     cfg.AdminEmail,
	}, hash, time.Now().UTC(), cfg.UserTTL)
	u.Admin = true

	err = repo.Insert(ctx, &u)

	// already seeded, here or by another instance
	if errors.Is(err, user.ErrConflict) {
		return nil
	}

	return err
}
