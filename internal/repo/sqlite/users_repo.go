package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/observability"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRecord is the gorm mapping of the users table. Timestamps come from
// the caller, so gorm's auto-time tracking is off.
type UserRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PublicID  string    `gorm:"size:50;uniqueIndex;not null"`
	Email     string    `gorm:"size:100;uniqueIndex;not null"`
	Password  string    `gorm:"size:80;not null"`
	FirstName string    `gorm:"size:50;not null"`
	LastName  string    `gorm:"size:50;not null"`
	UserRole  *string   `gorm:"size:50"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
	ExpiredAt time.Time
	Admin     bool `gorm:"not null;default:false"`
}

func (UserRecord) TableName() string {
	return "users"
}

// columns written by Update; id, public_id and created_at never change
var mutableColumns = []string{"email", "password", "first_name", "last_name", "user_role", "updated_at", "expired_at", "admin"}

type UsersRepo struct {
	db   *gorm.DB
	prom *observability.Prom
}

func NewUsersRepo(db *gorm.DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) ListAll(ctx context.Context) ([]user.User, error) {
	var rows []UserRecord

	err := r.prom.ObserveDB("users.list_all", func() error {
		return r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]user.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}

	return out, nil
}

func (r *UsersRepo) FindByPublicID(ctx context.Context, publicID string) (*user.User, error) {
	var row UserRecord

	err := r.prom.ObserveDB("users.find_by_public_id", func() error {
		return r.db.WithContext(ctx).Where("public_id = ?", publicID).Take(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	u := row.toDomain()
	return &u, nil
}

func (r *UsersRepo) Insert(ctx context.Context, u *user.User) error {
	row := fromDomain(*u)
	row.ID = 0

	err := r.prom.ObserveDB("users.insert", func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
	if err != nil {
		return translate(err)
	}

	u.ID = row.ID
	return nil
}

func (r *UsersRepo) Update(ctx context.Context, u user.User) error {
	row := fromDomain(u)
	row.ID = 0
	var affected int64

	err := r.prom.ObserveDB("users.update", func() error {
		res := r.db.WithContext(ctx).
			Model(&UserRecord{}).
			Where("public_id = ?", u.PublicID).
			Select(mutableColumns).
			Updates(&row)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return translate(err)
	}

	if affected == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) Delete(ctx context.Context, publicID string) error {
	var affected int64

	err := r.prom.ObserveDB("users.delete", func() error {
		res := r.db.WithContext(ctx).Where("public_id = ?", publicID).Delete(&UserRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}

	if affected == 0 {
		return user.ErrNotFound
	}

	return nil
}

// BulkUpsert writes every row in one transaction, keyed by email.
func (r *UsersRepo) BulkUpsert(ctx context.Context, users []user.User) error {
	err := r.prom.ObserveDB("users.bulk_upsert", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, u := range users {
				row := fromDomain(u)
				row.ID = 0

				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "email"}},
					DoUpdates: clause.AssignmentColumns([]string{"password", "first_name", "last_name", "user_role", "updated_at", "expired_at"}),
				}).Create(&row).Error

				if err != nil {
					return err
				}
			}
			return nil
		})
	})

	return translate(err)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return user.ErrConflict
	}
	return err
}

func fromDomain(u user.User) UserRecord {
	return UserRecord{
		ID:        u.ID,
		PublicID:  u.PublicID,
		Email:     u.Email,
		Password:  u.Password,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UserRole:  u.UserRole,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		ExpiredAt: u.ExpiredAt,
		Admin:     u.Admin,
	}
}

func (r UserRecord) toDomain() user.User {
	return user.User{
		ID:        r.ID,
		PublicID:  r.PublicID,
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		UserRole:  r.UserRole,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiredAt: r.ExpiredAt,
		Admin:     r.Admin,
	}
}
