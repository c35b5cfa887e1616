package cache

import (
	"encoding/json"
	"fmt"
)

// CachedFeed wraps a serialized feed with the kind it was stored under
type CachedFeed struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// encodeEnvelope wraps feed JSON in a CachedFeed
func encodeEnvelope(kind string, data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("refusing to cache invalid JSON for %s", kind)
	}
	blob, err := json.Marshal(CachedFeed{Kind: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cached feed: %w", err)
	}
	return blob, nil
}

// decodeEnvelope unwraps a CachedFeed and checks its kind
func decodeEnvelope(kind string, blob []byte) ([]byte, error) {
	var cached CachedFeed
	if err := json.Unmarshal(blob, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached feed: %w", err)
	}
	if cached.Kind != kind {
		return nil, fmt.Errorf("kind mismatch: cached=%s, expected=%s", cached.Kind, kind)
	}
	return cached.Data, nil
}
