// Package repotest holds the behaviour every user.Repository must share.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/google/uuid"
)

func NewUser(email string) user.User {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return user.User{
		PublicID:  uuid.NewString(),
		Email:     email,
		Password:  "$2a$04$notarealhashbutnotplaintext",
		FirstName: "Ada",
		LastName:  "Lovelace",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiredAt: now.Add(user.DefaultTTL),
	}
}

// Run exercises newRepo against the repository contract. newRepo must
// return an empty store each call.
func Run(t *testing.T, newRepo func(t *testing.T) user.Repository) {
	t.Helper()

	t.Run("insert_assigns_id_and_find_returns_it", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u := NewUser("ada@example.com")
		if err := repo.Insert(ctx, &u); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
		if u.ID == 0 {
			t.Fatalf("expected id to be assigned")
		}

		got, err := repo.FindByPublicID(ctx, u.PublicID)
		if err != nil || got == nil {
			t.Fatalf("FindByPublicID got %v, %v", got, err)
		}
		if got.Email != u.Email || got.ID != u.ID {
			t.Fatalf("unexpected user %+v", got)
		}
	})

	t.Run("find_missing_returns_nil_without_error", func(t *testing.T) {
		repo := newRepo(t)

		got, err := repo.FindByPublicID(context.Background(), uuid.NewString())
		if err != nil || got != nil {
			t.Fatalf("expected nil, nil; got %v, %v", got, err)
		}
	})

	t.Run("duplicate_email_is_conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a := NewUser("dup@example.com")
		b := NewUser("dup@example.com")

		if err := repo.Insert(ctx, &a); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
		if err := repo.Insert(ctx, &b); !errors.Is(err, user.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		all, _ := repo.ListAll(ctx)
		if len(all) != 1 {
			t.Fatalf("got %d users, want 1", len(all))
		}
	})

	t.Run("update_persists_mutable_fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u := NewUser("old@example.com")
		if err := repo.Insert(ctx, &u); err != nil {
			t.Fatalf("Insert error: %v", err)
		}

		u.Email = "new@example.com"
		u.FirstName = "Augusta"
		u.Admin = true
		u.UpdatedAt = u.UpdatedAt.Add(time.Second)

		if err := repo.Update(ctx, u); err != nil {
			t.Fatalf("Update error: %v", err)
		}

		got, _ := repo.FindByPublicID(ctx, u.PublicID)
		if got == nil || got.Email != "new@example.com" || got.FirstName != "Augusta" || !got.Admin {
			t.Fatalf("update not persisted: %+v", got)
		}
		if got.ID != u.ID {
			t.Fatalf("id changed: got %d want %d", got.ID, u.ID)
		}
	})

	t.Run("update_missing_is_not_found", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.Update(context.Background(), NewUser("ghost@example.com"))
		if !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update_to_taken_email_is_conflict", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a := NewUser("a@example.com")
		b := NewUser("b@example.com")
		_ = repo.Insert(ctx, &a)
		_ = repo.Insert(ctx, &b)

		b.Email = "a@example.com"
		if err := repo.Update(ctx, b); !errors.Is(err, user.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("delete_twice_reports_not_found", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u := NewUser("gone@example.com")
		_ = repo.Insert(ctx, &u)

		if err := repo.Delete(ctx, u.PublicID); err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		if err := repo.Delete(ctx, u.PublicID); !errors.Is(err, user.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		got, err := repo.FindByPublicID(ctx, u.PublicID)
		if err != nil || got != nil {
			t.Fatalf("expected deleted user to be gone, got %v, %v", got, err)
		}
	})

	t.Run("bulk_upsert_inserts_and_updates_by_email", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		existing := NewUser("grace@example.com")
		existing.Admin = true
		if err := repo.Insert(ctx, &existing); err != nil {
			t.Fatalf("Insert error: %v", err)
		}

		incoming := NewUser("grace@example.com")
		incoming.FirstName = "Grace"
		fresh := NewUser("alan@example.com")

		if err := repo.BulkUpsert(ctx, []user.User{incoming, fresh}); err != nil {
			t.Fatalf("BulkUpsert error: %v", err)
		}

		all, _ := repo.ListAll(ctx)
		if len(all) != 2 {
			t.Fatalf("got %d users, want 2", len(all))
		}

		got, _ := repo.FindByPublicID(ctx, existing.PublicID)
		if got == nil {
			t.Fatalf("existing public_id must survive the upsert")
		}
		if got.FirstName != "Grace" || !got.Admin {
			t.Fatalf("unexpected upserted row %+v", got)
		}

		if stale, _ := repo.FindByPublicID(ctx, incoming.PublicID); stale != nil {
			t.Fatalf("incoming public_id must not replace the existing one")
		}

		if added, _ := repo.FindByPublicID(ctx, fresh.PublicID); added == nil {
			t.Fatalf("fresh row was not inserted")
		}
	})

	t.Run("bulk_upsert_is_all_or_nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		taken := NewUser("taken@example.com")
		_ = repo.Insert(ctx, &taken)

		ok := NewUser("ok@example.com")
		clash := NewUser("clash@example.com")
		clash.PublicID = taken.PublicID

		if err := repo.BulkUpsert(ctx, []user.User{ok, clash}); !errors.Is(err, user.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		all, _ := repo.ListAll(ctx)
		if len(all) != 1 {
			t.Fatalf("failed batch must not write rows, got %d users", len(all))
		}
	})

	t.Run("list_all_orders_by_id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for _, email := range []string{"1@example.com", "2@example.com", "3@example.com"} {
			u := NewUser(email)
			if err := repo.Insert(ctx, &u); err != nil {
				t.Fatalf("Insert error: %v", err)
			}
		}

		all, err := repo.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll error: %v", err)
		}
		for i := 1; i < len(all); i++ {
			if all[i-1].ID >= all[i].ID {
				t.Fatalf("users not ordered by id: %d then %d", all[i-1].ID, all[i].ID)
			}
		}
	})
}
