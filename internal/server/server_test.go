package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpboard/internal/config"
	"helpboard/internal/models"
	"helpboard/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	s   *Server
	app *fiber.App
	db  *gorm.DB
	rdb *redis.Client
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:            "test-secret-key-12345678901234567890123456789012",
		JWTExpiration:        time.Hour,
		Port:                 "0",
		Env:                  "test",
		WSAttributeStore:     config.AttributeStoreMemory,
		WSSessionTTL:         time.Hour,
		ChatSendLimit:        30,
		ChatMaxMessageLength: 2000,
	}
}

// newTestServer builds the full app over SQLite. withRedis backs it with miniredis.
func newTestServer(t *testing.T, withRedis bool) *testServer {
	t.Helper()
	db := testutil.NewTestDB(t)

	var rdb *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
	}

	s, err := NewServerWithDeps(testConfig(), db, rdb)
	require.NoError(t, err)
	return &testServer{s: s, app: s.NewApp(), db: db, rdb: rdb}
}

func (ts *testServer) tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := ts.s.tokens.Issue(u.Email, u.ID)
	require.NoError(t, err)
	return "Bearer " + tok.Value
}

// call performs a request and decodes the JSON body into out when non-nil.
func (ts *testServer) call(t *testing.T, method, path, auth string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := ts.app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (ts *testServer) expectError(t *testing.T, method, path, auth string, body any, status int, code string) {
	t.Helper()
	var e errorBody
	got := ts.call(t, method, path, auth, body, &e)
	require.Equal(t, status, got, "body: %+v", e)
	require.Equal(t, code, e.Code)
}

func expectStatus(t *testing.T, want, got int) {
	t.Helper()
	require.Equal(t, want, got, http.StatusText(got))
}
