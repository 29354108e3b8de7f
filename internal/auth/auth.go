// Package auth resolves the merchant identity of dashboard requests.
//
// Dashboard tokens are HS256 JWTs issued by the commerce platform's app
// framework: "sub" is the merchant id and "aud" the authorized app id. The
// Authorization header carries them as "JWT <token>" (platform convention) or
// "Bearer <token>".
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for a missing, malformed or invalid credential.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the authenticated caller of the dashboard API.
type Identity struct {
	MerchantID      string `json:"merchantId"`
	AuthorizedAppID string `json:"authorizedAppId"`
}

// Authenticator turns an Authorization header value into an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (Identity, error)
}

// JWTAuthenticator verifies HS256 tokens with a shared secret.
type JWTAuthenticator struct {
	Secret []byte
	Leeway time.Duration
}

// NewJWTAuthenticator returns a JWTAuthenticator with a 30s clock leeway.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{Secret: []byte(secret), Leeway: 30 * time.Second}
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(_ context.Context, authorization string) (Identity, error) {
	raw, err := bearer(authorization)
	if err != nil {
		return Identity{}, err
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.Leeway),
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	id := Identity{MerchantID: strings.TrimSpace(claims.Subject)}
	if len(claims.Audience) > 0 {
		id.AuthorizedAppID = strings.TrimSpace(claims.Audience[0])
	}
	if id.MerchantID == "" || id.AuthorizedAppID == "" {
		return Identity{}, fmt.Errorf("%w: token lacks sub or aud", ErrUnauthorized)
	}
	return id, nil
}

// Issue signs a token for id valid for ttl. Used by the seed command and tests.
func (a *JWTAuthenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   id.MerchantID,
		Audience:  jwt.ClaimStrings{id.AuthorizedAppID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

// StaticAuthenticator authenticates every request as a fixed identity. It is
// the development bypass and must never be enabled in production.
type StaticAuthenticator struct {
	Identity Identity
}

// Authenticate implements Authenticator.
func (a StaticAuthenticator) Authenticate(context.Context, string) (Identity, error) {
	return a.Identity, nil
}

func bearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", ErrUnauthorized)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return "", fmt.Errorf("%w: malformed Authorization header", ErrUnauthorized)
	}
	switch strings.ToLower(scheme) {
	case "jwt", "bearer":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrUnauthorized, scheme)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	return token, nil
}
