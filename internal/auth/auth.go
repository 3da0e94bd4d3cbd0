// Package auth verifies bearer ID tokens and maps them to a model.Identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/interviewprep/interviewprep/internal/model"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks an ID token and returns the caller it identifies.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// Claims are the ID token claims the service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Admin         bool   `json:"admin,omitempty"`
}

func (c *Claims) identity(admins []string) (*model.Identity, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &model.Identity{
		UID:           c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Admin:         c.Admin || slices.Contains(admins, c.Subject),
	}, nil
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret   []byte
	audience string
	admins   []string
}

var _ Verifier = (*HMACVerifier)(nil)

// NewHMACVerifier returns a verifier for secret. When audience is set,
// tokens must carry it.
func NewHMACVerifier(secret, audience string, admins []string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), audience: audience, admins: admins}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (*model.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.identity(v.admins)
}

// Sign issues a token for id valid for ttl.
func (v *HMACVerifier) Sign(id model.Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
		Admin:         id.Admin,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
