package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"messaging-service/internal/authz"
)

func TestResolveRoundTrip(t *testing.T) {
	resolver := NewResolver("test-secret")

	token, err := resolver.Issue(42, authz.RoleManager, time.Minute)
	require.NoError(t, err)

	ident, err := resolver.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, 42, ident.UserID)
	require.Equal(t, authz.RoleManager, ident.Role)
}

func TestResolveNormalizesLegacyRoles(t *testing.T) {
	resolver := NewResolver("test-secret")

	token, err := resolver.Issue(5, authz.Role("team_manager"), time.Minute)
	require.NoError(t, err)

	ident, err := resolver.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, authz.RoleManager, ident.Role)
}

func TestResolveRejectsWrongSecret(t *testing.T) {
	issuer := NewResolver("secret-a")
	verifier := NewResolver("secret-b")

	token, err := issuer.Issue(7, authz.RoleEmployee, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	resolver := NewResolver("test-secret")

	token, err := resolver.Issue(7, authz.RoleEmployee, -time.Minute)
	require.NoError(t, err)

	_, err = resolver.Resolve(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolveRejectsGarbage(t *testing.T) {
	resolver := NewResolver("test-secret")

	_, err := resolver.Resolve("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
