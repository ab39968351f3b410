package server

import (
	"net/http"
	"strings"
	"testing"

	"helpboard/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Correct-Horse-42"

func TestRegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t, true)
	email := strings.ToLower(gofakeit.Email())

	var reg authResponse
	status := ts.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Marta Kowalska",
		"email":    email,
		"password": strongPassword,
		"location": "Leith",
	}, &reg)
	expectStatus(t, http.StatusCreated, status)
	require.NotNil(t, reg.User)
	assert.Equal(t, email, reg.User.Email)
	assert.Equal(t, "Leith", reg.User.Location)
	assert.True(t, strings.HasPrefix(reg.Token, "Bearer "))
	assert.False(t, reg.ExpiresAt.IsZero())

	var stored models.User
	require.NoError(t, ts.db.First(&stored, reg.User.ID).Error)
	assert.NotEqual(t, strongPassword, stored.Password)

	ts.expectError(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Someone Else", "email": strings.ToUpper(email), "password": strongPassword,
	}, http.StatusConflict, models.CodeConflict)

	var login authResponse
	status = ts.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": strongPassword,
	}, &login)
	expectStatus(t, http.StatusOK, status)
	assert.Equal(t, reg.User.ID, login.User.ID)

	ts.expectError(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "Wrong-Password-99",
	}, http.StatusUnauthorized, models.CodeInvalidCredential)
	ts.expectError(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": strongPassword,
	}, http.StatusUnauthorized, models.CodeInvalidCredential)

	expectStatus(t, http.StatusOK, ts.call(t, http.MethodPost, "/api/auth/logout", login.Token, nil, nil))
	ts.expectError(t, http.MethodPost, "/api/auth/logout", login.Token, nil,
		http.StatusUnauthorized, models.CodeInvalidCredential)

	// the registration token was not revoked
	expectStatus(t, http.StatusOK, ts.call(t, http.MethodGet, "/api/users/"+itoa(reg.User.ID)+"/requests", reg.Token, nil, nil))
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing fields", map[string]string{"email": "a@example.com"}},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email", "password": strongPassword}},
		{"weak password", map[string]string{"name": "A", "email": "a@example.com", "password": "short"}},
		{"long name", map[string]string{"name": strings.Repeat("n", 81), "email": "a@example.com", "password": strongPassword}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.expectError(t, http.MethodPost, "/api/auth/register", "", tt.body,
				http.StatusBadRequest, models.CodeValidation)
		})
	}
}
