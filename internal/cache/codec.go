package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Remote backends store entries as zstd-compressed JSON. OpenAPI documents
// compress well and some are larger than the default NATS payload limit.
var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

func encodeEntry(entry *Entry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry: %w", err)
	}

	return encoder.EncodeAll(raw, nil), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cache entry: %w", err)
	}

	entry := &Entry{}

	err = json.Unmarshal(raw, entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}

	return entry, nil
}

// encodeKey maps arbitrary keys (schema URLs) onto the key alphabet accepted
// by NATS key/value buckets.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
