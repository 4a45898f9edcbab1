package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/security"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	ListAll(ctx context.Context) ([]user.User, error)
	FindByPublicID(ctx context.Context, publicID string) (*user.User, error)
	Insert(ctx context.Context, u *user.User) error
	Update(ctx context.Context, u user.User) error
	Delete(ctx context.Context, publicID string) error
	BulkUpsert(ctx context.Context, users []user.User) error
}

type PasswordHasher interface {
	HashPassword(plain string) (string, error)
}

const storeTimeout = 3 * time.Second

type UsersHandler struct {
	repo   UserStore
	hasher PasswordHasher
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewUsersHandler(repo UserStore, hasher PasswordHasher, ttl time.Duration) *UsersHandler {
	return &UsersHandler{
		repo:   repo,
		hasher: hasher,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.Default(),
	}
}

// WithClock replaces the time source used for created/updated/expiry stamps.
func (h *UsersHandler) WithClock(now func() time.Time) *UsersHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *UsersHandler) WithLogger(log *slog.Logger) *UsersHandler {
	if log != nil {
		h.log = log
	}
	return h
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	users, err := h.repo.ListAll(cctx)

	if err != nil {
		h.log.ErrorContext(cctx, "list users failed", "err", err)
		RespondInternal(ctx, "Could not list users")
		return
	}

	views := make([]user.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"users": views})
}

func (h *UsersHandler) GetUser(ctx *gin.Context) {
	u, ok := h.lookup(ctx, MsgNoUserFound)
	if !ok {
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"user": u.View()})
}

func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)

	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			RespondBadRequest(ctx, MsgIncorrectInput, passwordTooLong("password"))
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "hash password failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	u := user.NewFromCreateRequest(req, hash, h.now(), h.ttl)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	err = h.repo.Insert(cctx, &u)

	if err != nil {
		if errors.Is(err, user.ErrConflict) {
			RespondConflict(ctx, "email_taken", MsgEmailTaken)
			return
		}

		h.log.ErrorContext(cctx, "insert user failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":   MsgUserCreated,
		"public_id": u.PublicID,
	})
}

func (h *UsersHandler) UpdateUser(ctx *gin.Context) {
	u, ok := h.lookup(ctx, MsgUserNotFound)
	if !ok {
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u.FirstName = req.FirstName
	u.LastName = req.LastName
	u.Email = req.Email

	h.save(ctx, *u, MsgUserUpdated)
}

func (h *UsersHandler) UpdatePassword(ctx *gin.Context) {
	u, ok := h.lookup(ctx, MsgUserNotFound)
	if !ok {
		return
	}

	var req user.UpdatePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)

	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			RespondBadRequest(ctx, MsgIncorrectInput, passwordTooLong("password"))
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "hash password failed", "err", err)
		RespondInternal(ctx, "Could not update password")
		return
	}

	u.Password = hash

	h.save(ctx, *u, MsgPasswordUpdated)
}

// SetAdmin grants the admin flag. Granting it twice is not an error.
func (h *UsersHandler) SetAdmin(ctx *gin.Context) {
	u, ok := h.lookup(ctx, MsgUserNotFound)
	if !ok {
		return
	}

	u.Admin = true

	h.save(ctx, *u, MsgAdminUpdated)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	err := h.repo.Delete(cctx, ctx.Param("public_id"))

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, MsgUserNotFound)
			return
		}

		h.log.ErrorContext(cctx, "delete user failed", "err", err)
		RespondInternal(ctx, "Could not delete user")
		return
	}

	RespondMessage(ctx, http.StatusOK, MsgUserDeleted)
}

// lookup resolves the :public_id path param. On a miss it has already
// written the response and returns false.
func (h *UsersHandler) lookup(ctx *gin.Context, notFoundMsg string) (*user.User, bool) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	u, err := h.repo.FindByPublicID(cctx, ctx.Param("public_id"))

	if err != nil {
		h.log.ErrorContext(cctx, "find user failed", "err", err)
		RespondInternal(ctx, "Could not fetch user")
		return nil, false
	}

	if u == nil {
		RespondNotFound(ctx, notFoundMsg)
		return nil, false
	}

	return u, true
}

func (h *UsersHandler) save(ctx *gin.Context, u user.User, okMsg string) {
	now := h.now()

	// updated_at never moves backwards, even with a coarse clock
	if !now.After(u.UpdatedAt) {
		now = u.UpdatedAt.Add(time.Microsecond)
	}
	u.UpdatedAt = now

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	err := h.repo.Update(cctx, u)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			RespondNotFound(ctx, MsgUserNotFound)
		case errors.Is(err, user.ErrConflict):
			RespondConflict(ctx, "email_taken", MsgEmailTaken)
		default:
			h.log.ErrorContext(cctx, "update user failed", "err", err)
			RespondInternal(ctx, "Could not update user")
		}
		return
	}

	RespondMessage(ctx, http.StatusOK, okMsg)
}
