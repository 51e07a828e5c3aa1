package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredStore checks a fast in-process layer before a persistent one
type LayeredStore struct {
	memory Store
	disk   Store
}

// NewLayeredStore creates a new layered store
func NewLayeredStore(memory, disk Store) *LayeredStore {
	return &LayeredStore{
		memory: memory,
		disk:   disk,
	}
}

// Get checks memory first, then the persistent layer
func (c *LayeredStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, _ := c.memory.Get(ctx, key); found {
		return val, true, nil
	}

	val, found, err := c.disk.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	// Promote with the memory layer's default TTL
	_ = c.memory.Set(ctx, key, val, 0)
	return val, true, nil
}

// Set stores a value in both layers
func (c *LayeredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(ctx, key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredStore) Delete(ctx context.Context, key string) error {
	return errors.Join(c.memory.Delete(ctx, key), c.disk.Delete(ctx, key))
}

// Clear removes all values from both layers
func (c *LayeredStore) Clear(ctx context.Context) error {
	return errors.Join(c.memory.Clear(ctx), c.disk.Clear(ctx))
}

// Close closes both layers
func (c *LayeredStore) Close() error {
	return errors.Join(c.memory.Close(), c.disk.Close())
}
