package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, public_id, email, password, first_name, last_name, user_role, created_at, updated_at, expired_at, admin`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func (r *UsersRepo) ListAll(ctx context.Context) (users []user.User, err error) {
	var rows pgx.Rows

	err = r.observe("users.list_all", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
		return qerr
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	users = make([]user.User, 0)

	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *UsersRepo) FindByPublicID(ctx context.Context, publicID string) (*user.User, error) {
	var u user.User

	err := r.observe("users.find_by_public_id", func() error {
		var qerr error
		u, qerr = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE public_id = $1`, publicID))
		return qerr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &u, nil
}

func (r *UsersRepo) Insert(ctx context.Context, u *user.User) error {
	err := r.observe("users.insert", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (public_id, email, password, first_name, last_name, user_role, created_at, updated_at, expired_at, admin)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id`,
			u.PublicID, u.Email, u.Password, u.FirstName, u.LastName, u.UserRole, u.CreatedAt, u.UpdatedAt, u.ExpiredAt, u.Admin,
		).Scan(&u.ID)
	})

	return translate(err)
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) error {
	var tag pgconn.CommandTag

	err := r.observe("users.update", func() error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE users
				SET email = $2,
					password = $3,
					first_name = $4,
					last_name = $5,
					user_role = $6,
					updated_at = $7,
					expired_at = $8,
					admin = $9
			WHERE public_id = $1`,
			u.PublicID, u.Email, u.Password, u.FirstName, u.LastName, u.UserRole, u.UpdatedAt, u.ExpiredAt, u.Admin,
		)
		return err
	})

	if err != nil {
		return translate(err)
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) Delete(ctx context.Context, publicID string) error {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM users WHERE public_id = $1`, publicID)
		return err
	})

	if err != nil {
		return err
	}

	// if no rows were deleted as a result return a not found error
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// BulkUpsert writes every row in one transaction, keyed by email.
func (r *UsersRepo) BulkUpsert(ctx context.Context, users []user.User) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, u := range users {
		err = r.observe("users.bulk_upsert.row", func() error {
			_, e := tx.Exec(ctx,
				`INSERT INTO users (public_id, email, password, first_name, last_name, user_role, created_at, updated_at, expired_at, admin)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (email) DO UPDATE
					SET password = EXCLUDED.password,
						first_name = EXCLUDED.first_name,
						last_name = EXCLUDED.last_name,
						user_role = EXCLUDED.user_role,
						updated_at = EXCLUDED.updated_at,
						expired_at = EXCLUDED.expired_at`,
				u.PublicID, u.Email, u.Password, u.FirstName, u.LastName, u.UserRole, u.CreatedAt, u.UpdatedAt, u.ExpiredAt, u.Admin,
			)
			return e
		})

		if err != nil {
			return translate(err)
		}
	}

	return tx.Commit(ctx)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.PublicID,
		&u.Email,
		&u.Password,
		&u.FirstName,
		&u.LastName,
		&u.UserRole,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.ExpiredAt,
		&u.Admin,
	)

	return u, err
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return user.ErrConflict
	}

	return err
}
