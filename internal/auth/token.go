// Package auth issues and verifies bearer credentials and resolves them to identities.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer   = "helpboard-api"
	tokenAudience = "helpboard-client"
	bearerPrefix  = "Bearer "
)

// Claims is the JWT payload. Subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Token is a freshly issued credential.
type Token struct {
	Value     string
	JTI       string
	ExpiresAt time.Time
}

// Subject is what a verified credential asserts.
type Subject struct {
	UserID    uint
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// Tokens signs and verifies HS256 credentials with a shared key.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens for secret. Issued tokens live for ttl.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests to check expiry.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// Issue signs a token for the given subject.
func (t *Tokens) Issue(email string, userID uint) (*Token, error) {
	if len(t.secret) == 0 {
		return nil, errors.New("JWT secret not configured")
	}

	now := t.now()
	exp := now.Add(t.ttl)
	jti := uuid.NewString()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Value: signed, JTI: jti, ExpiresAt: exp}, nil
}

// Verify checks signature, expiry, issuer, audience and subject.
func (t *Tokens) Verify(raw string) (*Subject, error) {
	raw = StripBearer(raw)
	if raw == "" {
		return nil, errors.New("empty token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("invalid subject claim %q", claims.Subject)
	}

	s := &Subject{UserID: uint(userID), Email: claims.Email, JTI: claims.ID}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// StripBearer removes an optional "Bearer " prefix.
func StripBearer(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) >= len(bearerPrefix) && strings.EqualFold(credential[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(credential[len(bearerPrefix):])
	}
	return credential
}
