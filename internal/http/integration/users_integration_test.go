package integration__test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/userdir/internal/config"
	"github.com/geocoder89/userdir/internal/domain/user"
	apphttp "github.com/geocoder89/userdir/internal/http"
	"github.com/geocoder89/userdir/internal/repo/memory"
	"github.com/geocoder89/userdir/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() config.Config {
	return config.Config{
		Env:              "test",
		StorageDriver:    config.DriverMemory,
		BcryptCost:       bcrypt.MinCost,
		ImportMaxRecords: 10,
		MaxUploadBytes:   1 << 20,
		UserTTL:          user.DefaultTTL,
		OTelServiceName:  "userdir-test",
	}
}

// steppingClock advances one second per call so every write gets a later stamp.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)
	return c.now
}

type testApp struct {
	router *gin.Engine
	repo   apphttp.Store
	hasher *security.Hasher
}

func setupTestApp(t *testing.T) testApp {
	t.Helper()

	return setupTestAppWith(t, memory.NewUsersRepo())
}

func setupTestAppWith(t *testing.T, repo apphttp.Store) testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher, err := security.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clock := &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	router := apphttp.NewRouter(logger, apphttp.Deps{
		Users:    repo,
		Hasher:   hasher,
		Gatherer: prometheus.NewRegistry(),
		Now:      clock.Now,
	}, testConfig())

	return testApp{router: router, repo: repo, hasher: hasher}
}

func (a testApp) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	return w
}

func (a testApp) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/file_import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	return w
}

func (a testApp) create(t *testing.T, first, last, email, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"first_name":%q,"last_name":%q,"email":%q,"password":%q}`, first, last, email, password)
	w := a.do(t, http.MethodPost, "/user", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("create %s: got %d body=%s", email, w.Code, w.Body.String())
	}

	var resp struct {
		Message  string `json:"message"`
		PublicID string `json:"public_id"`
	}
	decode(t, w, &resp)

	if resp.Message != "New user CREATED." {
		t.Fatalf("got message %q", resp.Message)
	}

	return resp.PublicID
}

func (a testApp) get(t *testing.T, publicID string) user.UserView {
	t.Helper()

	w := a.do(t, http.MethodGet, "/user/"+publicID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get %s: got %d body=%s", publicID, w.Code, w.Body.String())
	}

	var resp struct {
		User user.UserView `json:"user"`
	}
	decode(t, w, &resp)

	return resp.User
}

func (a testApp) list(t *testing.T) []user.UserView {
	t.Helper()

	w := a.do(t, http.MethodGet, "/user", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Users []user.UserView `json:"users"`
	}
	decode(t, w, &resp)

	return resp.Users
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, w.Body.String())
	}
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Message string `json:"message"`
	}
	decode(t, w, &resp)

	return resp.Message
}

func importFile(n int, emailPrefix string) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, fmt.Sprintf(`{"first_name":"F%d","last_name":"L%d","email":"%s%d@x.io","password":"pw%d"}`, i, i, emailPrefix, i, i))
	}
	return `{"users":[` + strings.Join(parts, ",") + `]}`
}

func TestCreateThenList(t *testing.T) {
	app := setupTestApp(t)

	if users := app.list(t); len(users) != 0 {
		t.Fatalf("expected empty directory, got %d users", len(users))
	}

	publicID := app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")

	users := app.list(t)
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}

	u := users[0]
	if u.PublicID != publicID || u.Email != "ada@x.io" || u.FirstName != "Ada" || u.LastName != "Lovelace" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Admin {
		t.Fatalf("new users must not be admin")
	}
	if u.Password == "p1" {
		t.Fatalf("password stored in plain text")
	}
	if err := app.hasher.CheckPassword(u.Password, "p1"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	if !u.CreatedAt.Equal(u.UpdatedAt) {
		t.Fatalf("created_at %v and updated_at %v differ on create", u.CreatedAt, u.UpdatedAt)
	}
	if got := u.ExpiredAt.Sub(u.CreatedAt); got != user.DefaultTTL {
		t.Fatalf("got expiry window %v, want %v", got, user.DefaultTTL)
	}
}

func TestCreateRejectsIncompleteAndDuplicate(t *testing.T) {
	app := setupTestApp(t)

	w := app.do(t, http.MethodPost, "/user", `{"first_name":"Ada","email":"ada@x.io"}`)
	if w.Code != http.StatusBadRequest || message(t, w) != "Incorrect input data!" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}

	app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")

	w = app.do(t, http.MethodPost, "/user", `{"first_name":"A","last_name":"L","email":"ada@x.io","password":"p2"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email: got %d %s", w.Code, w.Body.String())
	}

	if users := app.list(t); len(users) != 1 {
		t.Fatalf("rejected creates must not write, got %d users", len(users))
	}
}

func TestUpdateProfileRoundTrip(t *testing.T) {
	app := setupTestApp(t)

	publicID := app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")
	before := app.get(t, publicID)

	w := app.do(t, http.MethodPut, "/update_user/"+publicID, `{"first_name":"Augusta","last_name":"King","email":"augusta@x.io"}`)
	if w.Code != http.StatusOK || message(t, w) != "User has been UPDATED" {
		t.Fatalf("update: got %d %s", w.Code, w.Body.String())
	}

	after := app.get(t, publicID)

	if after.FirstName != "Augusta" || after.LastName != "King" || after.Email != "augusta@x.io" {
		t.Fatalf("profile not applied: %+v", after)
	}
	if after.Password != before.Password || after.Admin != before.Admin || !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("untouched fields changed: before=%+v after=%+v", before, after)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestUpdatePassword(t *testing.T) {
	app := setupTestApp(t)

	publicID := app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")

	w := app.do(t, http.MethodPut, "/update_password/"+publicID, `{"password":"p2"}`)
	if w.Code != http.StatusOK || message(t, w) != "User password has been UPDATED" {
		t.Fatalf("update password: got %d %s", w.Code, w.Body.String())
	}

	u := app.get(t, publicID)

	if err := app.hasher.CheckPassword(u.Password, "p2"); err != nil {
		t.Fatalf("new password does not verify: %v", err)
	}
	if err := app.hasher.CheckPassword(u.Password, "p1"); err == nil {
		t.Fatalf("old password still verifies")
	}
	if u.Email != "ada@x.io" || u.FirstName != "Ada" {
		t.Fatalf("profile changed by password update: %+v", u)
	}
}

func TestSetAdminIsIdempotent(t *testing.T) {
	app := setupTestApp(t)

	publicID := app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")

	for i := 0; i < 2; i++ {
		w := app.do(t, http.MethodPut, "/set_admin/"+publicID, "")
		if w.Code != http.StatusOK || message(t, w) != "Admin role updated" {
			t.Fatalf("set_admin #%d: got %d %s", i+1, w.Code, w.Body.String())
		}

		if !app.get(t, publicID).Admin {
			t.Fatalf("admin flag not set after call #%d", i+1)
		}
	}
}

func TestDeleteTwice(t *testing.T) {
	app := setupTestApp(t)

	publicID := app.create(t, "Ada", "Lovelace", "ada@x.io", "p1")

	w := app.do(t, http.MethodDelete, "/user/"+publicID, "")
	if w.Code != http.StatusOK || message(t, w) != "User has been DELETED" {
		t.Fatalf("delete: got %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodDelete, "/user/"+publicID, "")
	if w.Code != http.StatusNotFound || message(t, w) != "User not found!" {
		t.Fatalf("second delete: got %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/user/"+publicID, "")
	if w.Code != http.StatusNotFound || message(t, w) != "No user found!" {
		t.Fatalf("get after delete: got %d %s", w.Code, w.Body.String())
	}
}

func TestUnknownPublicIDOnEveryMutation(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, "/update_user/nope", `{"first_name":"A","last_name":"B","email":"c@x.io"}`},
		{http.MethodPut, "/update_password/nope", `{"password":"p"}`},
		{http.MethodPut, "/set_admin/nope", ""},
		{http.MethodDelete, "/user/nope", ""},
	}

	for _, tc := range tests {
		t.Run(tc.method+tc.path, func(t *testing.T) {
			w := app.do(t, tc.method, tc.path, tc.body)

			if w.Code != http.StatusNotFound || message(t, w) != "User not found!" {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestImportOverLimitWritesNothing(t *testing.T) {
	app := setupTestApp(t)

	w := app.upload(t, "users.json", importFile(11, "bulk"))

	if w.Code != http.StatusRequestEntityTooLarge || message(t, w) != "Too many records for insert!" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}

	if users := app.list(t); len(users) != 0 {
		t.Fatalf("rejected import wrote %d users", len(users))
	}
}

func TestImportWithinLimit(t *testing.T) {
	app := setupTestApp(t)

	w := app.upload(t, "users.json", importFile(10, "bulk"))

	if w.Code != http.StatusCreated || w.Body.String() != "File UPLOADED !" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	users := app.list(t)
	if len(users) != 10 {
		t.Fatalf("expected 10 users, got %d", len(users))
	}

	seen := map[string]bool{}
	for _, u := range users {
		if seen[u.PublicID] {
			t.Fatalf("duplicate public_id %q", u.PublicID)
		}
		seen[u.PublicID] = true

		if u.Admin {
			t.Fatalf("imported user %s is admin", u.Email)
		}
		if strings.HasPrefix(u.Password, "pw") {
			t.Fatalf("imported password for %s not hashed", u.Email)
		}
	}
}

func TestImportUpsertsByEmail(t *testing.T) {
	app := setupTestApp(t)

	publicID := app.create(t, "Old", "Name", "bulk0@x.io", "old")
	if w := app.do(t, http.MethodPut, "/set_admin/"+publicID, ""); w.Code != http.StatusOK {
		t.Fatalf("set_admin: got %d", w.Code)
	}

	if w := app.upload(t, "users.json", importFile(2, "bulk")); w.Code != http.StatusCreated {
		t.Fatalf("import: got %d %s", w.Code, w.Body.String())
	}

	users := app.list(t)
	if len(users) != 2 {
		t.Fatalf("expected 2 users after upsert, got %d", len(users))
	}

	u := app.get(t, publicID)
	if u.FirstName != "F0" || u.LastName != "L0" {
		t.Fatalf("existing user not updated from file: %+v", u)
	}
	if !u.Admin {
		t.Fatalf("import must not revoke admin")
	}
	if err := app.hasher.CheckPassword(u.Password, "pw0"); err != nil {
		t.Fatalf("imported password does not verify: %v", err)
	}
}

func TestImportRejectsInvalidEntryAtomically(t *testing.T) {
	app := setupTestApp(t)

	content := `{"users":[
		{"first_name":"A","last_name":"B","email":"a@x.io","password":"p"},
		{"first_name":"C","last_name":"D","email":"c@x.io"}
	]}`

	w := app.upload(t, "users.json", content)
	if w.Code != http.StatusBadRequest || message(t, w) != "Incorrect input data!" {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}

	if users := app.list(t); len(users) != 0 {
		t.Fatalf("invalid import wrote %d users", len(users))
	}
}

func TestImportRejectsNonJSONFile(t *testing.T) {
	app := setupTestApp(t)

	w := app.upload(t, "users.csv", importFile(1, "bulk"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := app.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: got %d", path, w.Code)
		}
	}

	w := app.do(t, http.MethodGet, "/file_import", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("import form: got %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}
