package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/geocoder89/userdir/internal/domain/user"
)

// UsersRepo keeps users in process memory. Email and public_id uniqueness
// mirror the constraints of the SQL schema.
type UsersRepo struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]user.User // keyed by public_id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
	}
}

func (r *UsersRepo) ListAll(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *UsersRepo) FindByPublicID(_ context.Context, publicID string) (*user.User, error) {
	r.mu.RLock()
	u, ok := r.items[publicID]
	r.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	return &u, nil
}

func (r *UsersRepo) Insert(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insertLocked(u)
}

func (r *UsersRepo) Update(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[u.PublicID]
	if !ok {
		return user.ErrNotFound
	}

	if other, taken := r.byEmailLocked(u.Email); taken && other.PublicID != u.PublicID {
		return user.ErrConflict
	}

	// id, public_id and created_at are immutable
	u.ID = current.ID
	u.CreatedAt = current.CreatedAt
	r.items[u.PublicID] = u

	return nil
}

func (r *UsersRepo) Delete(_ context.Context, publicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[publicID]; !ok {
		return user.ErrNotFound
	}
	delete(r.items, publicID)

	return nil
}

func (r *UsersRepo) BulkUpsert(_ context.Context, users []user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// work on a copy so a failing entry leaves the store untouched
	staged := make(map[string]user.User, len(r.items)+len(users))
	for k, v := range r.items {
		staged[k] = v
	}
	nextID := r.nextID

	for _, in := range users {
		var existing *user.User
		for _, s := range staged {
			if s.Email == in.Email {
				s := s
				existing = &s
				break
			}
		}

		if existing != nil {
			existing.FirstName = in.FirstName
			existing.LastName = in.LastName
			existing.Password = in.Password
			existing.UserRole = in.UserRole
			existing.UpdatedAt = in.UpdatedAt
			existing.ExpiredAt = in.ExpiredAt
			staged[existing.PublicID] = *existing
			continue
		}

		if _, taken := staged[in.PublicID]; taken {
			return user.ErrConflict
		}

		nextID++
		in.ID = nextID
		staged[in.PublicID] = in
	}

	r.items = staged
	r.nextID = nextID

	return nil
}

func (r *UsersRepo) Ping(_ context.Context) error {
	return nil
}

func (r *UsersRepo) insertLocked(u *user.User) error {
	if _, taken := r.items[u.PublicID]; taken {
		return user.ErrConflict
	}
	if _, taken := r.byEmailLocked(u.Email); taken {
		return user.ErrConflict
	}

	r.nextID++
	u.ID = r.nextID
	r.items[u.PublicID] = *u

	return nil
}

func (r *UsersRepo) byEmailLocked(email string) (user.User, bool) {
	for _, u := range r.items {
		if u.Email == email {
			return u, true
		}
	}

	return user.User{}, false
}
