// Package memory is an in-process cache backend.
package memory

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Backend keeps values in a go-cache instance. Expiry is left to the caller,
// so items never expire and no janitor runs.
type Backend struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{c: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the value stored under key.
func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := b.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Replace applies sets and deletes under one lock.
func (b *Backend) Replace(_ context.Context, set map[string]string, del []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range set {
		b.c.Set(k, v, gocache.NoExpiration)
	}
	for _, k := range del {
		b.c.Delete(k)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (b *Backend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.c.Delete(k)
	}
	return nil
}

// Len reports how many keys are stored.
func (b *Backend) Len() int {
	return b.c.ItemCount()
}
