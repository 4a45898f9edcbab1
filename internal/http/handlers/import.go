package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/userdir/internal/bulkimport"
	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/observability"
	"github.com/geocoder89/userdir/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	importFileField   = "file"
	defaultMaxRecords = 10
)

type ImportHandler struct {
	repo       UserStore
	hasher     PasswordHasher
	maxRecords int
	ttl        time.Duration
	prom       *observability.Prom
	now        func() time.Time
	log        *slog.Logger
}

func NewImportHandler(repo UserStore, hasher PasswordHasher, maxRecords int, ttl time.Duration, prom *observability.Prom) *ImportHandler {
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	return &ImportHandler{
		repo:       repo,
		hasher:     hasher,
		maxRecords: maxRecords,
		ttl:        ttl,
		prom:       prom,
		now:        func() time.Time { return time.Now().UTC() },
		log:        slog.Default(),
	}
}

func (h *ImportHandler) WithLogger(log *slog.Logger) *ImportHandler {
	if log != nil {
		h.log = log
	}
	return h
}

// Upload handles POST /file_import. Either every entry is written or none is.
func (h *ImportHandler) Upload(ctx *gin.Context) {
	form, err := ctx.MultipartForm()

	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			RespondTooLarge(ctx, "upload_too_large", MsgUploadTooLarge)
			return
		}

		RespondBadRequest(ctx, MsgNoFilePart, nil)
		return
	}

	fh, err := bulkimport.PickFile(form, importFileField)

	if err != nil {
		switch {
		case errors.Is(err, bulkimport.ErrNoSelectedFile):
			RespondBadRequest(ctx, MsgNoSelectedFile, nil)
		case errors.Is(err, bulkimport.ErrFileTypeNotAllowed):
			RespondError(ctx, http.StatusUnsupportedMediaType, "unsupported_file_type", MsgFileTypeNotAllowed, nil)
		default:
			RespondBadRequest(ctx, MsgNoFilePart, nil)
		}
		return
	}

	f, err := fh.Open()

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "open uploaded file failed", "err", err)
		RespondInternal(ctx, "Could not read uploaded file")
		return
	}

	defer f.Close()

	file, err := bulkimport.Decode(f, h.maxRecords)

	if err != nil {
		h.respondDecodeError(ctx, err)
		return
	}

	users, err := bulkimport.BuildUsers(file, h.hasher.HashPassword, h.now(), h.ttl)

	if err != nil {
		var entryErr *bulkimport.EntryError
		if errors.As(err, &entryErr) && errors.Is(err, security.ErrPasswordTooLong) {
			RespondBadRequest(ctx, MsgIncorrectInput, passwordTooLong(fmt.Sprintf("users[%d].password", entryErr.Index)))
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "prepare import failed", "err", err)
		RespondInternal(ctx, "Could not import users")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), storeTimeout)
	defer cancel()

	err = h.repo.BulkUpsert(cctx, users)

	if err != nil {
		h.prom.ObserveImport("rejected", len(users))

		if errors.Is(err, user.ErrConflict) {
			RespondConflict(ctx, "import_conflict", MsgEmailTaken)
			return
		}

		h.log.ErrorContext(cctx, "bulk upsert failed", "err", err, "records", len(users))
		RespondInternal(ctx, "Could not import users")
		return
	}

	h.prom.ObserveImport("written", len(users))
	h.log.InfoContext(cctx, "users imported", "records", len(users), "file", fh.Filename)

	ctx.String(http.StatusCreated, MsgFileUploaded)
}

func (h *ImportHandler) respondDecodeError(ctx *gin.Context, err error) {
	var verrs validator.ValidationErrors

	switch {
	case errors.Is(err, bulkimport.ErrTooManyRecords):
		RespondError(ctx, http.StatusRequestEntityTooLarge, "too_many_records", MsgTooManyRecords, gin.H{"limit": h.maxRecords})
	case errors.As(err, &verrs):
		RespondBadRequest(ctx, MsgIncorrectInput, parseBindError(err, &bulkimport.File{}))
	case errors.Is(err, bulkimport.ErrMalformedFile):
		RespondBadRequest(ctx, MsgIncorrectInput, gin.H{"json": "invalid_import_file"})
	default:
		h.log.ErrorContext(ctx.Request.Context(), "decode import failed", "err", err)
		RespondInternal(ctx, "Could not import users")
	}
}

func (h *ImportHandler) WithClock(now func() time.Time) *ImportHandler {
	if now != nil {
		h.now = now
	}
	return h
}
