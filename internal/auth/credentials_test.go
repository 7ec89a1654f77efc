package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, token, secret string) (*jwt.Token, *Claims) {
	t.Helper()

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	return parsed, claims
}

func TestCredentials_GetToken(t *testing.T) {
	t.Parallel()

	issued := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	creds := NewCredentials("demo", "geheim", "zaken.lezen").WithClock(func() time.Time { return issued })

	token, err := creds.GetToken(context.Background())
	require.NoError(t, err)

	parsed, claims := parse(t, token, "geheim")
	assert.Equal(t, "demo", parsed.Header["client_identifier"])
	assert.Equal(t, "demo", claims.ClientID)
	assert.Equal(t, "demo", claims.Issuer)
	assert.Equal(t, issued.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, []string{"zaken.lezen"}, claims.Scopes)
	assert.Empty(t, claims.UserID)
}

func TestCredentials_WithIdentity(t *testing.T) {
	t.Parallel()

	base := NewCredentials("demo", "geheim")
	user := base.WithIdentity(Identity{UserID: "jdoe", Representation: "John Doe"})

	assert.Empty(t, base.Identity.UserID, "original credentials must not change")

	token, err := user.GetToken(context.Background())
	require.NoError(t, err)

	_, claims := parse(t, token, "geheim")
	assert.Equal(t, "jdoe", claims.UserID)
	assert.Equal(t, "John Doe", claims.UserRepresentation)

	anon, err := base.WithIdentity(Anonymous).GetToken(context.Background())
	require.NoError(t, err)

	_, claims = parse(t, anon, "geheim")
	assert.Equal(t, Anonymous.UserID, claims.UserID)
}

func TestCredentials_Disabled(t *testing.T) {
	t.Parallel()

	token, err := Credentials{}.GetToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestCredentials_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCredentials("demo", "").GetToken(context.Background())
	require.ErrorIs(t, err, ErrSecretRequired)
}
