// Package identity verifies bearer tokens issued by the identity provider and
// extracts the caller's e-mail address.
package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"memberships/internal/platform/config"
	dErrors "memberships/pkg/domain-errors"
	"memberships/pkg/platform/middleware/auth"
)

// Claims are the provider's ID token claims we rely on.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Verifier checks signature, expiry, issuer and audience. It accepts HS256
// tokens when built with a shared secret and RS256 tokens with a public key.
type Verifier struct {
	hmacKey   []byte
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
}

// NewVerifier builds a verifier from configuration. A PEM public key takes
// precedence over the shared secret.
func NewVerifier(cfg config.IdentityConfig) (*Verifier, error) {
	v := &Verifier{issuer: cfg.Issuer, audience: cfg.Audience}
	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid identity public key")
		}
		v.publicKey = key
		return v, nil
	}
	if cfg.HMACSecret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "identity secret or public key is required")
	}
	v.hmacKey = []byte(cfg.HMACSecret)
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.publicKey != nil {
			return v.publicKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.hmacKey != nil {
			return v.hmacKey, nil
		}
	}
	return nil, jwt.ErrTokenUnverifiable
}

// Verify implements auth.TokenVerifier.
func (v *Verifier) Verify(_ context.Context, tokenString string) (*auth.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, v.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no email")
	}
	return &auth.Identity{Email: email, Verified: claims.EmailVerified}, nil
}

// IssueHS256 signs a token with the shared secret. Local development and
// tests use it in place of the real provider.
func (v *Verifier) IssueHS256(email string, verified bool, expiresIn time.Duration) (string, error) {
	if v.hmacKey == nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "verifier has no shared secret")
	}
	now := time.Now()
	claims := Claims{
		Email:         email,
		EmailVerified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
			ID:        uuid.NewString(),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.hmacKey)
}
