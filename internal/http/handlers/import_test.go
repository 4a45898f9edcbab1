package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/userdir/internal/domain/user"
	"github.com/geocoder89/userdir/internal/http/handlers"
	"github.com/geocoder89/userdir/internal/observability"
	"github.com/geocoder89/userdir/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type upload struct {
	// field name of the part; empty means no part at all
	field    string
	filename string
	content  string
	asValue  bool
}

func multipartRequest(t *testing.T, up upload) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	switch {
	case up.field == "":
		if err := mw.WriteField("note", "nothing attached"); err != nil {
			t.Fatalf("write field: %v", err)
		}
	case up.asValue:
		if err := mw.WriteField(up.field, up.content); err != nil {
			t.Fatalf("write field: %v", err)
		}
	default:
		fw, err := mw.CreateFormFile(up.field, up.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(up.content)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/file_import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return req
}

func importEntries(n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(`{"first_name":"F%d","last_name":"L%d","email":"u%d@x.io","password":"pw%d"}`, i, i, i, i))
	}
	return `{"users":[` + strings.Join(parts, ",") + `]}`
}

func TestImportHandler_Upload(t *testing.T) {
	tests := []struct {
		name           string
		upload         upload
		bulkErr        error
		wantStatusCode int
		wantMessage    string
		wantWritten    int
	}{
		{
			name:           "no_file_part",
			upload:         upload{},
			wantStatusCode: http.StatusBadRequest,
			wantMessage:    handlers.MsgNoFilePart,
		},
		{
			name:           "no_selected_file",
			upload:         upload{field: "file", filename: ""},
			wantStatusCode: http.StatusBadRequest,
			wantMessage:    handlers.MsgNoSelectedFile,
		},
		{
			name:           "wrong_extension",
			upload:         upload{field: "file", filename: "users.csv", content: importEntries(1)},
			wantStatusCode: http.StatusUnsupportedMediaType,
			wantMessage:    handlers.MsgFileTypeNotAllowed,
		},
		{
			name:           "too_many_records",
			upload:         upload{field: "file", filename: "users.json", content: importEntries(11)},
			wantStatusCode: http.StatusRequestEntityTooLarge,
			wantMessage:    handlers.MsgTooManyRecords,
		},
		{
			name:           "malformed_json",
			upload:         upload{field: "file", filename: "users.json", content: `{"users": [`},
			wantStatusCode: http.StatusBadRequest,
			wantMessage:    handlers.MsgIncorrectInput,
		},
		{
			name:           "missing_users_key",
			upload:         upload{field: "file", filename: "users.json", content: `{"people": []}`},
			wantStatusCode: http.StatusBadRequest,
			wantMessage:    handlers.MsgIncorrectInput,
		},
		{
			name:           "conflict",
			upload:         upload{field: "file", filename: "users.json", content: importEntries(2)},
			bulkErr:        user.ErrConflict,
			wantStatusCode: http.StatusConflict,
			wantMessage:    handlers.MsgEmailTaken,
		},
		{
			name:           "repo_error",
			upload:         upload{field: "file", filename: "users.json", content: importEntries(2)},
			bulkErr:        fmt.Errorf("db error"),
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name:           "at_limit",
			upload:         upload{field: "file", filename: "Users.JSON", content: importEntries(10)},
			wantStatusCode: http.StatusCreated,
			wantWritten:    10,
		},
		{
			name:           "empty_list",
			upload:         upload{field: "file", filename: "users.json", content: `{"users": []}`},
			wantStatusCode: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			var written []user.User
			calls := 0

			repo := &fakeUsersRepo{
				bulkFn: func(ctx context.Context, users []user.User) error {
					calls++
					if tt.bulkErr != nil {
						return tt.bulkErr
					}
					written = users
					return nil
				},
			}

			h := handlers.NewImportHandler(repo, fakeHasher{}, 10, user.DefaultTTL, nil)
			r := setupRouter(http.MethodPost, "/file_import", h.Upload)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, tt.upload))

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusCreated {
				if w.Body.String() != handlers.MsgFileUploaded {
					t.Fatalf("got body %q, want %q", w.Body.String(), handlers.MsgFileUploaded)
				}
				if len(written) != tt.wantWritten {
					t.Fatalf("got %d written, want %d", len(written), tt.wantWritten)
				}
				return
			}

			if tt.wantMessage != "" {
				if got := decodeMessage(t, w); got != tt.wantMessage {
					t.Fatalf("got message %q, want %q", got, tt.wantMessage)
				}
			}

			if tt.bulkErr == nil && calls != 0 {
				t.Fatalf("repo must not be called on a rejected upload, got %d calls", calls)
			}
		})
	}
}

func TestImportHandler_InvalidEntryReportsPath(t *testing.T) {
	repo := &fakeUsersRepo{
		bulkFn: func(ctx context.Context, users []user.User) error {
			t.Fatalf("repo must not be called for an invalid file")
			return nil
		},
	}

	h := handlers.NewImportHandler(repo, fakeHasher{}, 10, user.DefaultTTL, nil)
	r := setupRouter(http.MethodPost, "/file_import", h.Upload)

	content := `{"users":[
		{"first_name":"A","last_name":"B","email":"a@x.io","password":"p"},
		{"first_name":"C","last_name":"D","email":"c@x.io"}
	]}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, upload{field: "file", filename: "users.json", content: content}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(resp.Error.Details.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", resp.Error.Details.Fields)
	}
	if got := resp.Error.Details.Fields[0].Field; got != "users[1].password" {
		t.Fatalf("got field %q, want users[1].password", got)
	}
}

func TestImportHandler_BuildsDistinctHashedUsers(t *testing.T) {
	var written []user.User

	repo := &fakeUsersRepo{
		bulkFn: func(ctx context.Context, users []user.User) error {
			written = users
			return nil
		},
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	h := handlers.NewImportHandler(repo, fakeHasher{}, 10, user.DefaultTTL, prom)
	r := setupRouter(http.MethodPost, "/file_import", h.Upload)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, upload{field: "file", filename: "users.json", content: importEntries(3)}))

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201, body=%s", w.Code, w.Body.String())
	}

	seen := map[string]bool{}
	for i, u := range written {
		if seen[u.PublicID] {
			t.Fatalf("duplicate public_id %q", u.PublicID)
		}
		seen[u.PublicID] = true

		if want := fmt.Sprintf("hashed:pw%d", i); u.Password != want {
			t.Fatalf("users[%d] password %q, want %q", i, u.Password, want)
		}
		if u.Admin {
			t.Fatalf("imported users must not be admin")
		}
	}

	if got := testutil.ToFloat64(prom.ImportRecords.WithLabelValues("written")); got != 3 {
		t.Fatalf("got %v written records metric, want 3", got)
	}
}

func TestImportForm(t *testing.T) {
	r := setupRouter(http.MethodGet, "/file_import", handlers.ImportForm)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/file_import", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `name="file"`) {
		t.Fatalf("form should post a file field, got %s", w.Body.String())
	}
}

func TestImportHandler_PasswordOverBcryptLimit(t *testing.T) {
	repo := &fakeUsersRepo{
		bulkFn: func(ctx context.Context, users []user.User) error {
			t.Fatalf("repo must not be called when an entry cannot be hashed")
			return nil
		},
	}

	h := handlers.NewImportHandler(repo, limitedHasher(), 10, user.DefaultTTL, nil)
	r := setupRouter(http.MethodPost, "/file_import", h.Upload)

	long := strings.Repeat("a", security.MaxPasswordBytes+1)
	content := `{"users":[
		{"first_name":"A","last_name":"B","email":"a@x.io","password":"p"},
		{"first_name":"C","last_name":"D","email":"c@x.io","password":"` + long + `"}
	]}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, upload{field: "file", filename: "users.json", content: content}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if resp.Message != handlers.MsgIncorrectInput {
		t.Fatalf("got message %q", resp.Message)
	}
	if len(resp.Error.Details.Fields) != 1 || resp.Error.Details.Fields[0].Field != "users[1].password" {
		t.Fatalf("unexpected field errors %+v", resp.Error.Details.Fields)
	}
	if resp.Error.Details.Fields[0].Rule != "max" {
		t.Fatalf("got rule %q, want max", resp.Error.Details.Fields[0].Rule)
	}
}
