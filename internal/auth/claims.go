// Package auth verifies identity-provider tokens and manages member sessions
// and admin API keys.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evcraddock/advocate/internal/account"
)

// ErrInvalidToken is returned for an identity token that fails verification.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims are the identity provider's token claims.
type Claims struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Identity converts the claims to an account identity.
func (c *Claims) Identity() account.Identity {
	return account.Identity{
		Username: c.Subject,
		Name:     c.Name,
		Email:    c.Email,
		Verified: c.EmailVerified,
	}
}

// Verifier checks HS256 identity tokens issued by the provider.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier creates a verifier. Issuer and audience are checked when set.
func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity provider secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}, nil
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Sign issues a token for claims, filling in the time, issuer and audience claims.
func (v *Verifier) Sign(c Claims, ttl time.Duration) (string, error) {
	now := v.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if v.issuer != "" {
		c.Issuer = v.issuer
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secret)
}
