package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"secondchance/internal/auth"
	"secondchance/internal/domain"
	"secondchance/internal/repository/sqlite"
	"secondchance/internal/service"
	"secondchance/internal/storage"
)

type testServer struct {
	router *gin.Engine
	fs     afero.Fs
	tokens *auth.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	require.NoError(t, users.Init(ctx))
	items := sqlite.NewItemRepository(db)
	require.NoError(t, items.Init(ctx))

	tokens, err := auth.NewTokenIssuer("api-secret", time.Hour)
	require.NoError(t, err)

	log, _ := logtest.NewNullLogger()
	fs := afero.NewMemMapFs()

	router := gin.New()
	NewHandler(
		service.NewAuthService(users, auth.NewHasher(bcrypt.MinCost), tokens, log),
		service.NewItemService(items, storage.NewLocalServiceFs(fs, "/images"), log),
		log,
	).RegisterRoutes(router)

	return &testServer{router: router, fs: fs, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) register(t *testing.T, email, password string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":     email,
		"password":  password,
		"firstName": "Ada",
		"lastName":  "Lovelace",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, http.Header{requestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":     "ada@example.com",
		"password":  "engine",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ada@example.com", body["email"])
	_, err := s.tokens.Parse(body["token"])
	assert.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":     "ada@example.com",
		"password":  "again",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email already exists", decode[map[string]any](t, rec)["error"])
}

func TestRegisterEndpointMissingField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":    "ada@example.com",
		"password": "engine",
		"lastName": "Lovelace",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Request must include all fields", body["error"])

	rec = s.do(t, http.MethodPost, "/auth/register", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com", "engine")

	rec := s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "engine"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Ada", body["userName"])
	assert.Equal(t, "ada@example.com", body["userEmail"])
	_, err := s.tokens.Parse(body["authtoken"])
	assert.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid password", decode[map[string]any](t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "nobody@example.com", "password": "engine"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decode[map[string]any](t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfileEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com", "engine")

	rec := s.do(t, http.MethodPut, "/auth/update", gin.H{"email": "ada@example.com", "firstName": "Augusta"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email not in request headers", decode[map[string]any](t, rec)["error"])

	rec = s.do(t, http.MethodPut, "/auth/update", gin.H{"email": "nope"}, http.Header{"Email": {"ada@example.com"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var invalid struct {
		Error  string                   `json:"error"`
		Errors []service.FieldViolation `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invalid))
	assert.Equal(t, "validation failed", invalid.Error)
	assert.Equal(t, []service.FieldViolation{{Field: "email", Message: "must be a valid email"}}, invalid.Errors)

	rec = s.do(t, http.MethodPut, "/auth/update", gin.H{"email": "ada@example.com", "firstName": "Augusta"}, http.Header{"Email": {"ada@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, err := s.tokens.Parse(decode[map[string]string](t, rec)["authtoken"])
	assert.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "engine"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Augusta", decode[map[string]string](t, rec)["userName"])

	rec = s.do(t, http.MethodPut, "/auth/update", gin.H{"email": "ghost@example.com"}, http.Header{"Email": {"ghost@example.com"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/items", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/items", gin.H{
		"category":    "Living",
		"condition":   "Good",
		"age_days":    730,
		"description": "Sofa",
		"zip":         "94107",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, float64(2), created["age_years"])
	assert.Equal(t, "94107", created["zip"])
	assert.IsType(t, float64(0), created["date_added"])
	assert.NotContains(t, created, "updatedAt")

	rec = s.do(t, http.MethodGet, "/items/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Sofa", got["description"])
	assert.Equal(t, "94107", got["zip"])

	rec = s.do(t, http.MethodPut, "/items/1", gin.H{"description": "Blue sofa", "age_days": 400}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"updated":"success"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/items/1", nil, nil)
	got = decode[map[string]any](t, rec)
	assert.Equal(t, "Blue sofa", got["description"])
	assert.Equal(t, "Living", got["category"])
	assert.Equal(t, 1.1, got["age_years"])
	assert.Contains(t, got, "updatedAt")

	rec = s.do(t, http.MethodPost, "/items", gin.H{"category": "Office"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/items", nil, nil)
	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, float64(1), list[0]["id"])
	assert.Equal(t, float64(2), list[1]["id"])

	rec = s.do(t, http.MethodDelete, "/items/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":"success"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/items/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "secondChanceItem not found", decode[map[string]any](t, rec)["error"])
}

func TestItemNotFoundResponses(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/items/42", nil},
		{http.MethodGet, "/items/abc", nil},
		{http.MethodPut, "/items/42", gin.H{"category": "x"}},
		{http.MethodPut, "/items/42", gin.H{"age_days": "abc"}},
		{http.MethodPut, "/items/42", gin.H{"age_days": -5}},
		{http.MethodPut, "/items/42", "{not json"},
		{http.MethodPut, "/items/42", nil},
		{http.MethodPut, "/items/abc", gin.H{"category": 7}},
		{http.MethodDelete, "/items/42", nil},
	} {
		rec := s.do(t, tc.method, tc.path, tc.body, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCreateItemMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("category", "Kitchen"))
	require.NoError(t, w.WriteField("age_days", "365"))
	part, err := w.CreateFormFile("file", "kettle.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/items", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "/images/kettle.png", created["image"])
	assert.Equal(t, float64(365), created["age_days"])
	assert.Equal(t, float64(1), created["age_years"])

	data, err := afero.ReadFile(s.fs, "kettle.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestCreateItemRejectsBadAge(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/items", gin.H{"age_days": "soon"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/items", "[1,2]", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/items", `{"age_days":1e30}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be at most 2147483647")

	rec = s.do(t, http.MethodGet, "/items", nil, nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateItemOmitsUnsentText(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/items", gin.H{"category": "Garden"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "Garden", created["category"])
	assert.NotContains(t, created, "condition")
	assert.NotContains(t, created, "description")
}

func TestUpdateItemBodies(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/items", gin.H{"category": "Living", "age_days": 100}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPut, "/items/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"updated":"success"}`, rec.Body.String())

	got := decode[map[string]any](t, s.do(t, http.MethodGet, "/items/1", nil, nil))
	assert.Contains(t, got, "updatedAt")
	assert.Equal(t, "Living", got["category"])
	assert.Equal(t, float64(100), got["age_days"])

	rec = s.do(t, http.MethodPut, "/items/1", gin.H{"age_days": "730"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got = decode[map[string]any](t, s.do(t, http.MethodGet, "/items/1", nil, nil))
	assert.Equal(t, float64(730), got["age_days"])
	assert.Equal(t, float64(2), got["age_years"])

	rec = s.do(t, http.MethodPut, "/items/1", gin.H{"age_days": -5}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var invalid struct {
		Errors []service.FieldViolation `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invalid))
	assert.Equal(t, []service.FieldViolation{{Field: "age_days", Message: "must be at least 0"}}, invalid.Errors)

	rec = s.do(t, http.MethodPut, "/items/1", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode[map[string]any](t, rec)["error"])
}

type brokenItems struct{ service.ItemService }

func (brokenItems) ListItems(context.Context) ([]domain.Item, error) {
	return nil, service.Internal(errors.New("disk on fire at /var/lib/db"))
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, hook := logtest.NewNullLogger()

	router := gin.New()
	NewHandler(nil, brokenItems{}, log).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Message == "request failed" {
			logged = true
			assert.Contains(t, e.Data["error"].(error).Error(), "disk on fire")
		}
	}
	assert.True(t, logged)
}
