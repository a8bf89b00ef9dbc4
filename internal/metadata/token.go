package metadata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenExpiryBuffer is how long before expiry a cached token is replaced.
const tokenExpiryBuffer = 60 * time.Second

// TokenCache is a process-wide oauth2.TokenSource that keeps one app token
// and fetches a new one when the cached token is within a minute of expiry.
type TokenCache struct {
	mu    sync.Mutex
	token *oauth2.Token
	fetch func(ctx context.Context) (*oauth2.Token, error)
	now   func() time.Time
}

// NewTokenCache creates a TokenCache that obtains tokens from fetch.
func NewTokenCache(fetch func(ctx context.Context) (*oauth2.Token, error)) *TokenCache {
	return &TokenCache{fetch: fetch, now: time.Now}
}

// Token implements oauth2.TokenSource.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	return c.TokenContext(context.Background())
}

// TokenContext returns the cached token or fetches a fresh one.
// Concurrent callers share a single fetch.
func (c *TokenCache) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid() {
		return c.token, nil
	}
	tok, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching app token: %w", err)
	}
	c.token = tok
	return tok, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

func (c *TokenCache) valid() bool {
	if c.token == nil || c.token.AccessToken == "" {
		return false
	}
	if c.token.Expiry.IsZero() {
		return true
	}
	return c.now().Add(tokenExpiryBuffer).Before(c.token.Expiry)
}
