package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// NATSKVConfig configures the NATS JetStream key/value backend.
type NATSKVConfig struct {
	URL    string        `mapstructure:"url"`
	Bucket string        `mapstructure:"bucket"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// NATSKVCache stores entries in a JetStream key/value bucket.
type NATSKVCache struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// NewNATSKVCache connects to NATS and opens, or creates, the bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	url := config.URL
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("zac schema cache"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	cache, err := NewNATSKVCacheFromConn(conn, config)
	if err != nil {
		conn.Close()

		return nil, err
	}

	return cache, nil
}

// NewNATSKVCacheFromConn uses an existing connection. The connection is
// closed by Close.
func NewNATSKVCacheFromConn(conn *nats.Conn, config *NATSKVConfig) (*NATSKVCache, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = constants.DefaultNATSBucket
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "ZDS OpenAPI documents",
			TTL:         config.TTL,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("opening key/value bucket %s: %w", bucket, err)
	}

	return &NATSKVCache{conn: conn, kv: kv}, nil
}

// Get implements Cache.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*Entry, error) {
	kve, err := c.kv.Get(encodeKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s from NATS: %w", key, err)
	}

	entry, err := decodeEntry(kve.Value())
	if err != nil {
		return nil, err
	}

	if entry.Expired(time.Now()) {
		return nil, ErrExpired
	}

	return entry, nil
}

// Set implements Cache.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = c.kv.Put(encodeKey(key), data)
	if err != nil {
		return fmt.Errorf("writing %s to NATS: %w", key, err)
	}

	return nil
}

// Delete implements Cache.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(encodeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from NATS: %w", key, err)
	}

	return nil
}

// Clear implements Cache.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	keys, err := c.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("listing NATS keys: %w", err)
	}

	for _, key := range keys {
		err = c.kv.Delete(key)
		if err != nil {
			return fmt.Errorf("deleting NATS key %s: %w", key, err)
		}
	}

	return nil
}

// Has implements Cache.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Close closes the NATS connection.
func (c *NATSKVCache) Close() error {
	c.conn.Close()

	return nil
}
