package user

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a freshly created account stays valid.
const DefaultTTL = 30 * 24 * time.Hour

func NewFromCreateRequest(req CreateUserRequest, passwordHash string, now time.Time, ttl time.Duration) User {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return User{
		PublicID:  uuid.NewString(),
		Email:     req.Email,
		Password:  passwordHash,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserRole:  req.UserRole,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiredAt: now.Add(ttl),
	}
}
