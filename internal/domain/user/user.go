package user

import (
	"context"
	"errors"
	"time"
)

// User is the single entity of the directory. ID is owned by the store,
// PublicID is what clients use to address a record.
type User struct {
	ID        int64
	PublicID  string
	Email     string
	Password  string // bcrypt hash, never plaintext
	FirstName string
	LastName  string
	UserRole  *string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiredAt time.Time
	Admin     bool
}

// UserView is the JSON shape returned by the read endpoints.
type UserView struct {
	ID        int64     `json:"id"`
	PublicID  string    `json:"public_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	UserRole  *string   `json:"user_role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiredAt time.Time `json:"expired_at"`
	Admin     bool      `json:"admin"`
}

func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		PublicID:  u.PublicID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Password:  u.Password,
		UserRole:  u.UserRole,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		ExpiredAt: u.ExpiredAt,
		Admin:     u.Admin,
	}
}

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("user conflicts with an existing record")
)

// "required" rejects both absent and empty values.
type CreateUserRequest struct {
	FirstName string  `json:"first_name" binding:"required"`
	LastName  string  `json:"last_name" binding:"required"`
	Email     string  `json:"email" binding:"required"`
	Password  string  `json:"password" binding:"required"`
	UserRole  *string `json:"user_role" binding:"omitempty"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Repository is implemented by every storage backend.
type Repository interface {
	ListAll(ctx context.Context) ([]User, error)
	// FindByPublicID returns nil, nil when no record matches.
	FindByPublicID(ctx context.Context, publicID string) (*User, error)
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, publicID string) error
	// BulkUpsert writes the batch atomically, keyed by email. Existing rows keep
	// their id, public_id, created_at and admin flag.
	BulkUpsert(ctx context.Context, users []User) error
	Ping(ctx context.Context) error
}
