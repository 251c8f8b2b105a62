package querycache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// How long fetched resources stay fresh
const (
	UserTTL      = 5 * time.Minute
	AddressesTTL = 2 * time.Minute

	cleanupInterval = 10 * time.Minute
)

const KeyCurrentUser = "auth/currentUser"

func UserKey(userID int64) string {
	return fmt.Sprintf("users/%d", userID)
}

func AddressesKey(userID int64) string {
	return fmt.Sprintf("users/%d/addresses", userID)
}

func AddressKey(userID, addressID int64) string {
	return fmt.Sprintf("users/%d/addresses/%d", userID, addressID)
}

// Cache holds API query results keyed by resource path
type Cache struct {
	items *cache.Cache
}

func New() *Cache {
	return &Cache{items: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (c *Cache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.items.Set(key, value, ttl)
}

func (c *Cache) Delete(keys ...string) {
	for _, key := range keys {
		c.items.Delete(key)
	}
}

// DeletePrefix drops key and every key below it
func (c *Cache) DeletePrefix(key string) {
	for k := range c.items.Items() {
		if k == key || strings.HasPrefix(k, key+"/") {
			c.items.Delete(k)
		}
	}
}

// Clear drops everything, used when the session ends
func (c *Cache) Clear() {
	c.items.Flush()
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Lookup returns the cached value for key if it holds a T
func Lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Fetch returns the cached value for key, or calls fetch and caches its
// result for ttl. Errors are not cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := Lookup[T](c, key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
