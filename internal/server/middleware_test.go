package server

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"helpboard/internal/models"
	"helpboard/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_AuthRequired(t *testing.T) {
	ts := newTestServer(t, true)
	user := testutil.CreateUser(t, ts.db, "")
	secret := testConfig().JWTSecret

	app := fiber.New()
	app.Get("/protected", ts.s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": c.Locals("userID"), "name": currentIdentity(c).DisplayName})
	})
	ts.app = app

	generateToken := func(sub any, issuer, audience string, exp time.Duration) string {
		claims := jwt.MapClaims{
			"sub": sub,
			"iss": issuer,
			"aud": audience,
			"exp": time.Now().Add(exp).Unix(),
			"jti": "test-jti-valid-length",
		}
		str, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return str
	}
	sub := strconv.FormatUint(uint64(user.ID), 10)

	tests := []struct {
		name           string
		authHeader     string
		path           string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Valid Token",
			authHeader:     "Bearer " + generateToken(sub, "helpboard-api", "helpboard-client", time.Hour),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Valid Token via Query Param",
			path:           "/protected?token=" + generateToken(sub, "helpboard-api", "helpboard-client", time.Hour),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + generateToken(sub, "helpboard-api", "helpboard-client", -time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeInvalidCredential,
		},
		{
			name:           "Invalid Issuer",
			authHeader:     "Bearer " + generateToken(sub, "wrong-issuer", "helpboard-client", time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeInvalidCredential,
		},
		{
			name:           "Invalid Audience",
			authHeader:     "Bearer " + generateToken(sub, "helpboard-api", "wrong-audience", time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeInvalidCredential,
		},
		{
			name:           "Unknown Subject",
			authHeader:     "Bearer " + generateToken("424242", "helpboard-api", "helpboard-client", time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeUnknownSubject,
		},
		{
			name:           "Non-string Subject",
			authHeader:     "Bearer " + generateToken(123, "helpboard-api", "helpboard-client", time.Hour),
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeInvalidCredential,
		},
		{
			name:           "Missing Header and Param",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeUnauthenticated,
		},
		{
			name:           "Malformed Bearer Format",
			authHeader:     "BearerTokenOnly",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   models.CodeUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/protected"
			}
			var body map[string]any
			status := ts.call(t, http.MethodGet, path, tt.authHeader, nil, &body)
			assert.Equal(t, tt.expectedStatus, status)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, float64(user.ID), body["userID"])
				assert.Equal(t, user.Name, body["name"])
			} else {
				assert.Equal(t, tt.expectedCode, body["code"])
			}
		})
	}
}

func TestServer_AuthRequired_RevokedToken(t *testing.T) {
	ts := newTestServer(t, true)
	user := testutil.CreateUser(t, ts.db, "")
	tok, err := ts.s.tokens.Issue(user.Email, user.ID)
	require.NoError(t, err)
	require.NoError(t, ts.s.revocations.Revoke(context.Background(), tok.JTI, tok.ExpiresAt))

	ts.expectError(t, http.MethodGet, "/api/users/1/requests", "Bearer "+tok.Value, nil,
		http.StatusUnauthorized, models.CodeInvalidCredential)
}
