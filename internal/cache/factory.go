package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// Type represents the type of cache backend.
type Type string

const (
	// TypeMemory represents the in-process cache.
	TypeMemory Type = "memory"

	// TypeNATS represents the NATS key/value cache.
	TypeNATS Type = "nats"

	// TypeRedis represents the Redis cache.
	TypeRedis Type = "redis"

	// TypeNone represents no caching.
	TypeNone Type = "none"
)

// Static errors for err113 compliance.
var (
	ErrNATSConfigRequired    = errors.New("NATS configuration required for NATS cache")
	ErrRedisConfigRequired   = errors.New("redis configuration required for redis cache")
	ErrUnsupportedCacheType  = errors.New("unsupported cache type")
	ErrCacheDisabled         = errors.New("cache disabled")
	ErrKeyNotFoundInAnyCache = errors.New("key not found in any cache")
)

// MemoryConfig configures the memory cache.
type MemoryConfig struct {
	// MaxSize is the maximum number of documents kept.
	MaxSize int `mapstructure:"max_size"`
}

// Config selects and configures a backend.
type Config struct {
	Type   Type          `mapstructure:"type"`
	Memory *MemoryConfig `mapstructure:"memory"`
	NATS   *NATSKVConfig `mapstructure:"nats"`
	Redis  *RedisConfig  `mapstructure:"redis"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
		Memory: &MemoryConfig{
			MaxSize: constants.DefaultCacheSize,
		},
	}
}

// NewFromConfig creates a cache backend from configuration.
func NewFromConfig(config *Config) (Cache, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Type {
	case TypeMemory, "":
		size := constants.DefaultCacheSize
		if config.Memory != nil && config.Memory.MaxSize > 0 {
			size = config.Memory.MaxSize
		}

		return NewMemoryCache(size), nil

	case TypeNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		remote, err := NewNATSKVCache(config.NATS)
		if err != nil {
			return nil, err
		}

		return withMemoryFront(config, remote), nil

	case TypeRedis:
		if config.Redis == nil || config.Redis.Addr == "" {
			return nil, ErrRedisConfigRequired
		}

		return withMemoryFront(config, NewRedisCache(config.Redis)), nil

	case TypeNone:
		return NewNoOpCache(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

// withMemoryFront puts a memory cache in front of a remote backend when a
// memory size is configured.
func withMemoryFront(config *Config, remote Cache) Cache {
	if config.Memory == nil || config.Memory.MaxSize <= 0 {
		return remote
	}

	return NewChain(NewMemoryCache(config.Memory.MaxSize), remote)
}

// NoOpCache is a cache that does nothing.
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always returns an error (nothing cached).
func (c *NoOpCache) Get(ctx context.Context, key string) (*Entry, error) {
	return nil, ErrCacheDisabled
}

// Set does nothing.
func (c *NoOpCache) Set(ctx context.Context, key string, entry *Entry) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Clear does nothing.
func (c *NoOpCache) Clear(ctx context.Context) error {
	return nil
}

// Has always returns false.
func (c *NoOpCache) Has(ctx context.Context, key string) bool {
	return false
}

// Chain layers caches, typically memory in front of a shared backend.
type Chain struct {
	caches []Cache
}

// NewChain creates a new cache chain.
func NewChain(caches ...Cache) *Chain {
	return &Chain{
		caches: caches,
	}
}

// Get retrieves an item, populating the earlier layers on a hit.
func (c *Chain) Get(ctx context.Context, key string) (*Entry, error) {
	for i, cache := range c.caches {
		entry, err := cache.Get(ctx, key)
		if err == nil {
			for j := range i {
				_ = c.caches[j].Set(ctx, key, entry)
			}

			return entry, nil
		}
	}

	return nil, ErrKeyNotFoundInAnyCache
}

// Set stores an item in all caches.
func (c *Chain) Set(ctx context.Context, key string, entry *Entry) error {
	var lastErr error

	for _, cache := range c.caches {
		err := cache.Set(ctx, key, entry)
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Delete removes an item from all caches.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error

	for _, cache := range c.caches {
		err := cache.Delete(ctx, key)
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Clear removes all items from all caches.
func (c *Chain) Clear(ctx context.Context) error {
	var lastErr error

	for _, cache := range c.caches {
		err := cache.Clear(ctx)
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Close closes every layer that holds a connection.
func (c *Chain) Close() error {
	var errs []error

	for _, cache := range c.caches {
		if closer, ok := cache.(io.Closer); ok {
			err := closer.Close()
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// Has checks if a key exists in any cache.
func (c *Chain) Has(ctx context.Context, key string) bool {
	for _, cache := range c.caches {
		if cache.Has(ctx, key) {
			return true
		}
	}

	return false
}
