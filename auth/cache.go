package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Minute
)

// CachedAuthenticator memoizes successful verifications so that repeated
// in-band authenticate events with the same token do not hit the provider
// again. Entries expire with the TTL well before typical token lifetimes.
type CachedAuthenticator struct {
	next  Authenticator
	cache *expirable.LRU[string, string]
}

func NewCachedAuthenticator(next Authenticator) *CachedAuthenticator {
	return &CachedAuthenticator{
		next:  next,
		cache: expirable.NewLRU[string, string](defaultCacheSize, nil, defaultCacheTTL),
	}
}

func (a *CachedAuthenticator) Authenticate(ctx context.Context, token, provider string) (string, error) {
	if token == "" {
		return "", nil
	}
	key := provider + "\x00" + token
	if userId, ok := a.cache.Get(key); ok {
		return userId, nil
	}
	userId, err := a.next.Authenticate(ctx, token, provider)
	if err != nil {
		return "", err
	}
	if userId != "" {
		a.cache.Add(key, userId)
	}
	return userId, nil
}
