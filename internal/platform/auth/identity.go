package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/lensmarket/api/internal/domain"
)

// Identity is the principal extracted from a verified Firebase ID token.
type Identity struct {
	UID   string
	Email string
	Roles []domain.Role

	token *firebaseauth.Token
}

// Token exposes the decoded ID token, nil for identities built in tests.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

func (i *Identity) HasRole(role domain.Role) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(string(r), string(role)) {
			return true
		}
	}
	return false
}

// Actor converts the identity into the actor passed to services.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: i.UID, Roles: append([]domain.Role(nil), i.Roles...)}
}

type contextKey string

const identityContextKey contextKey = "github.com/lensmarket/api/internal/platform/auth/identity"

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
