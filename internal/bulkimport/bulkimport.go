// Package bulkimport decodes and checks the user import file accepted by
// POST /file_import.
package bulkimport

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/go-playground/validator/v10"
)

var allowedExtensions = map[string]struct{}{
	".json": {},
}

// File is the body of an import upload: {"users": [...]}.
type File struct {
	Users []user.CreateUserRequest `json:"users" binding:"dive"`
}

// validate shares the "binding" tag with gin so request structs carry one
// set of rules for both entry points.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

// CheckFilename rejects empty names and extensions other than .json.
func CheckFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNoSelectedFile
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return ErrFileTypeNotAllowed
	}

	return nil
}

// Decode reads an import file. The record cap is checked before any entry
// is validated, so an oversized file is rejected as a whole. Validation
// failures come back as validator.ValidationErrors.
func Decode(r io.Reader, maxRecords int) (File, error) {
	var f File

	dec := json.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	if f.Users == nil {
		return File{}, fmt.Errorf("%w: missing users list", ErrMalformedFile)
	}

	if len(f.Users) > maxRecords {
		return File{}, fmt.Errorf("%w: got %d, limit %d", ErrTooManyRecords, len(f.Users), maxRecords)
	}

	if err := validate.Struct(&f); err != nil {
		return File{}, err
	}

	return f, nil
}

// HashFunc hashes one plaintext password.
type HashFunc func(plain string) (string, error)

// BuildUsers turns decoded entries into users ready for BulkUpsert, each
// with a fresh public_id, hashed password and expiry.
func BuildUsers(f File, hash HashFunc, now time.Time, ttl time.Duration) ([]user.User, error) {
	out := make([]user.User, 0, len(f.Users))

	for i, req := range f.Users {
		h, err := hash(req.Password)
		if err != nil {
			return nil, &EntryError{Index: i, Err: err}
		}

		out = append(out, user.NewFromCreateRequest(req, h, now, ttl))
	}

	return out, nil
}

// PickFile returns the uploaded file under field. A browser submits an
// empty filename when nothing was chosen, which Go stores as a plain
// form value rather than a file.
func PickFile(form *multipart.Form, field string) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, ErrNoFilePart
	}

	if files := form.File[field]; len(files) > 0 {
		fh := files[0]
		if err := CheckFilename(fh.Filename); err != nil {
			return nil, err
		}
		return fh, nil
	}

	if _, ok := form.Value[field]; ok {
		return nil, ErrNoSelectedFile
	}

	return nil, ErrNoFilePart
}
