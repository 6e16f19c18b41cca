package cache

import (
	"strings"
	"time"

	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
)

const defaultPrincipalTTL = 30 * time.Second

// PrincipalCache stores resolved API key principals by key hash so admin
// requests skip the api_keys lookup on the hot path.
type PrincipalCache interface {
	GetPrincipal(keyHash string) (*apikeydomain.Principal, bool)
	SetPrincipal(keyHash string, principal *apikeydomain.Principal)
	Invalidate(keyHash string)
}

type principalCache struct {
	principals Cache[string, *apikeydomain.Principal]
	now        func() time.Time
	ttl        time.Duration
}

func NewPrincipalCache() PrincipalCache {
	return NewPrincipalCacheWithClock(time.Now, defaultPrincipalTTL)
}

func NewPrincipalCacheWithClock(now func() time.Time, ttl time.Duration) PrincipalCache {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	return &principalCache{
		now:        now,
		principals: NewTTLCacheWithClock[string, *apikeydomain.Principal](now),
		ttl:        ttl,
	}
}

func (c *principalCache) GetPrincipal(keyHash string) (*apikeydomain.Principal, bool) {
	return c.principals.Get(cacheKey(keyHash))
}

func (c *principalCache) SetPrincipal(keyHash string, principal *apikeydomain.Principal) {
	if principal == nil {
		return
	}
	// Never cache past the key's own expiry.
	ttl := c.ttl
	if principal.ExpiresAt != nil {
		if remaining := principal.ExpiresAt.Sub(c.now()); remaining < ttl {
			ttl = remaining
		}
	}
	c.principals.Set(cacheKey(keyHash), principal, ttl)
}

func (c *principalCache) Invalidate(keyHash string) {
	c.principals.Delete(cacheKey(keyHash))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
