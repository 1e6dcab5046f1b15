package claimtxman

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	cacheSize = 1000
)

// AttemptCache counts finalize attempts per transfer
type AttemptCache struct {
	attempts *lru.Cache[string, int]
}

// NewAttemptCache creates a new AttemptCache
func NewAttemptCache() (*AttemptCache, error) {
	cache, err := lru.New[string, int](cacheSize)
	if err != nil {
		return nil, err
	}
	return &AttemptCache{attempts: cache}, nil
}

// Inc records one more attempt for key and returns the total
func (c *AttemptCache) Inc(key string) int {
	n, _ := c.attempts.Get(key)
	n++
	c.attempts.Add(key, n)
	return n
}

// Get returns the attempts recorded for key
func (c *AttemptCache) Get(key string) int {
	n, _ := c.attempts.Get(key)
	return n
}

// Remove forgets key
func (c *AttemptCache) Remove(key string) {
	c.attempts.Remove(key)
}
