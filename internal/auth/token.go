// Package auth supplies bearer credentials to the transport and REST layers.
//
// Token issuance itself is owned by the platform; this package only caches an
// opaque bearer token and refreshes it near expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// minTokenLength is the minimal plausible credential size. Anything shorter
	// is rejected before a connection attempt is made.
	minTokenLength = 16

	// refreshWindow is how soon before expiry a cached token is refreshed.
	refreshWindow = 10 * time.Minute
)

// ErrMissingToken is returned when no credential is available.
var ErrMissingToken = errors.New("auth: missing token")

// TokenSource yields a bearer credential.
//
// Implementations must be safe for concurrent use. Callers re-acquire the
// token immediately before each request so refreshes take effect without
// coordination.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ValidateFormat performs the minimal local sanity check on a credential.
func ValidateFormat(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if len(token) < minTokenLength {
		return fmt.Errorf("auth: token too short (%d chars)", len(token))
	}
	return nil
}

// Static returns a TokenSource that always yields the same credential.
func Static(token string) TokenSource {
	return staticSource(token)
}

type staticSource string

func (s staticSource) Token(ctx context.Context) (string, error) {
	if err := ValidateFormat(string(s)); err != nil {
		return "", err
	}
	return string(s), nil
}

// RefreshFunc obtains a fresh credential from the platform's auth service.
type RefreshFunc func(ctx context.Context) (string, error)

// CachingSource caches a credential and refreshes it when it is expired or
// near expiry (for JWTs carrying an exp claim; opaque tokens are cached until
// a refresh is forced by the caller).
type CachingSource struct {
	refresh RefreshFunc

	mu    sync.Mutex
	token string
}

// NewCachingSource builds a CachingSource around a refresh function.
func NewCachingSource(refresh RefreshFunc) *CachingSource {
	return &CachingSource{refresh: refresh}
}

// Token returns the cached credential, refreshing it first when needed.
func (c *CachingSource) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !expiringSoon(c.token, refreshWindow) {
		return c.token, nil
	}

	token, err := c.refresh(ctx)
	if err != nil {
		if c.token != "" {
			// Keep serving the cached token through transient refresh failures;
			// the server will reject it if it has actually expired.
			return c.token, nil
		}
		return "", fmt.Errorf("auth: refresh token: %w", err)
	}
	if err := ValidateFormat(token); err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// Invalidate drops the cached credential so the next Token call refreshes.
func (c *CachingSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// expiresAt extracts the exp claim without verifying the signature. The client
// never trusts the token contents; exp is used only to schedule refreshes.
func expiresAt(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func expiringSoon(token string, window time.Duration) bool {
	exp, ok := expiresAt(token)
	if !ok {
		// No exp claim; don't attempt proactive refresh.
		return false
	}
	return time.Until(exp) <= window
}
