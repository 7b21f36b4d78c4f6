package mpesa

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenRefreshSkew renews the credential this long before the gateway expires it.
const tokenRefreshSkew = 60 * time.Second

type accessToken struct {
	value     string
	expiresAt time.Time
}

func (t accessToken) usable(now time.Time) bool {
	return t.value != "" && now.Add(tokenRefreshSkew).Before(t.expiresAt)
}

// tokenCache is the process-wide access credential. Reads take the read lock;
// refreshes are collapsed into a single in-flight fetch.
type tokenCache struct {
	mu      sync.RWMutex
	current accessToken
	group   singleflight.Group
	fetch   func(ctx context.Context) (accessToken, error)
	now     func() time.Time
	timeout time.Duration
}

func (c *tokenCache) cached() (accessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current.usable(c.now())
}

func (c *tokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok.value, nil
	}

	v, err, _ := c.group.Do("access_token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok.value, nil
		}
		// Detached from the caller: every waiter shares this fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		fresh, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.current = fresh
		c.mu.Unlock()
		return fresh.value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops stale if it is still the cached value, forcing the next
// Token call to refetch.
func (c *tokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.value == stale {
		c.current = accessToken{}
	}
}
