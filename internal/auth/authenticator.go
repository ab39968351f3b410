package auth

import (
	"context"
	"errors"
	"log/slog"

	"helpboard/internal/models"
	"helpboard/internal/observability"
)

// IdentityResolver looks a subject up. repository.UserRepository satisfies it.
type IdentityResolver interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Authenticator turns a bearer credential into an Identity.
type Authenticator struct {
	tokens  *Tokens
	users   IdentityResolver
	revoked *Revocations
}

// NewAuthenticator wires the verifier to identity lookup. revoked may be nil.
func NewAuthenticator(tokens *Tokens, users IdentityResolver, revoked *Revocations) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, revoked: revoked}
}

// Tokens exposes the underlying issuer.
func (a *Authenticator) Tokens() *Tokens {
	return a.tokens
}

// Authenticate verifies credential and resolves its subject. Failures are
// INVALID_CREDENTIAL for a bad, expired or revoked token and UNKNOWN_SUBJECT
// when the user no longer exists.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (models.Identity, *Subject, error) {
	subject, err := a.tokens.Verify(credential)
	if err != nil {
		observability.CredentialRejections.WithLabelValues(models.CodeInvalidCredential).Inc()
		return models.Identity{}, nil, models.NewCredentialError(err)
	}

	// An unreachable revocation store accepts the token.
	revoked, err := a.revoked.IsRevoked(ctx, subject.JTI)
	if err != nil {
		slog.WarnContext(ctx, "revocation check failed, accepting token",
			slog.String("jti", subject.JTI),
			slog.Uint64("user_id", uint64(subject.UserID)),
			slog.String("error", err.Error()),
		)
	}
	if revoked {
		observability.CredentialRejections.WithLabelValues(models.CodeInvalidCredential).Inc()
		return models.Identity{}, nil, models.NewCredentialError(errors.New("token has been revoked"))
	}

	user, err := a.users.GetByID(ctx, subject.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			observability.CredentialRejections.WithLabelValues(models.CodeUnknownSubject).Inc()
			return models.Identity{}, nil, &models.AppError{
				Code:    models.CodeUnknownSubject,
				Message: "token subject does not exist",
			}
		}
		return models.Identity{}, nil, err
	}
	return user.Identity(), subject, nil
}
