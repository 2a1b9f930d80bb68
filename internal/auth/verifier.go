package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"github.com/ammario/tlru"
	"github.com/coreos/go-oidc/v3/oidc"
)

const GoogleIssuer = "https://accounts.google.com"

var googleIssuers = []string{"accounts.google.com", GoogleIssuer}

// Claims are the fields of a verified ID token the service uses.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// GoogleVerifier checks Google ID tokens: signature against Google's JWKS,
// audience and expiry by go-oidc, issuer against both Google spellings.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier fetches Google's discovery document. Signing keys are
// fetched lazily and refetched when an unknown key id shows up.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google oidc provider: %w", err)
	}
	return NewGoogleVerifierFrom(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

func NewGoogleVerifierFrom(v *oidc.IDTokenVerifier) *GoogleVerifier {
	return &GoogleVerifier{verifier: v}
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	idToken, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !slices.Contains(googleIssuers, idToken.Issuer) {
		return nil, ErrInvalidIssuer
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims.Subject = idToken.Subject
	return &claims, nil
}

// CacheKey is the cache slot of a raw token: the first 16 hex digits of its
// SHA-256.
func CacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// CachingVerifier remembers successful verifications for ttl. Failures are
// not cached.
type CachingVerifier struct {
	next  Verifier
	ttl   time.Duration
	cache *tlru.Cache[string, *Claims]
}

func NewCachingVerifier(next Verifier, ttl time.Duration, size int) *CachingVerifier {
	return &CachingVerifier{
		next:  next,
		ttl:   ttl,
		cache: tlru.New[string](tlru.ConstantCost[*Claims], size),
	}
}

func (c *CachingVerifier) Verify(ctx context.Context, token string) (*Claims, error) {
	key := CacheKey(token)
	if claims, _, ok := c.cache.Get(key); ok {
		return claims, nil
	}

	claims, err := c.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, claims, c.ttl)
	return claims, nil
}
