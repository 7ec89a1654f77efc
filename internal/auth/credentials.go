// Package auth produces the bearer tokens sent to the ZDS APIs.
//
// The APIs authenticate a client with a short-lived JWT signed (HS256) with
// the secret shared between client and API. The token also names the end
// user on whose behalf the call is made, so the remote audit trail can
// attribute actions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Static errors for err113 compliance.
var (
	ErrSecretRequired = errors.New("secret is required when a client id is configured")
)

// Identity is the end user a call is made for.
type Identity struct {
	UserID         string
	Representation string
}

// Anonymous is used for requests without an authenticated user.
var Anonymous = Identity{
	UserID:         "anonymous",
	Representation: "Anonieme gebruiker",
}

// Claims is the JWT payload understood by the ZDS APIs.
type Claims struct {
	ClientID           string   `json:"client_id"`
	UserID             string   `json:"user_id"`
	UserRepresentation string   `json:"user_representation"`
	Scopes             []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Credentials is an immutable client id/secret pair plus the identity of the
// user the calls are made for. The zero value sends no Authorization header.
type Credentials struct {
	ClientID string
	Secret   string
	Scopes   []string
	Identity Identity

	now func() time.Time
}

// NewCredentials returns credentials for the given client.
func NewCredentials(clientID, secret string, scopes ...string) Credentials {
	return Credentials{
		ClientID: clientID,
		Secret:   secret,
		Scopes:   scopes,
	}
}

// WithIdentity returns a copy of the credentials for another user.
func (c Credentials) WithIdentity(identity Identity) Credentials {
	c.Identity = identity

	return c
}

// WithClock returns a copy of the credentials using now for the iat claim.
func (c Credentials) WithClock(now func() time.Time) Credentials {
	c.now = now

	return c
}

// Enabled reports whether a token will be produced.
func (c Credentials) Enabled() bool {
	return c.ClientID != ""
}

// GetToken returns a freshly signed JWT, or an empty string when no client
// id is configured.
func (c Credentials) GetToken(ctx context.Context) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	if c.Secret == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretRequired, c.ClientID)
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}

	claims := Claims{
		ClientID:           c.ClientID,
		UserID:             c.Identity.UserID,
		UserRepresentation: c.Identity.Representation,
		Scopes:             c.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.ClientID,
			IssuedAt: jwt.NewNumericDate(now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["client_identifier"] = c.ClientID

	signed, err := token.SignedString([]byte(c.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token for %s: %w", c.ClientID, err)
	}

	return signed, nil
}
