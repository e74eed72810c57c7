// Package auth implements static bearer-token authentication: a token set
// loaded once from configuration, consulted and never mutated by request
// handling.
package auth

import (
	"encoding/json"
	"fmt"
	"time"

	atlaserrors "atlas/internal/errors"
)

// KeyRecord holds the metadata attached to one API key.
type KeyRecord struct {
	Name    string     `json:"name"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Store validates bearer tokens against the configured key set.
type Store struct {
	keys map[string]KeyRecord
	now  func() time.Time
}

// NewStore creates a store over the given token set. An empty or nil set
// disables authentication entirely; callers decide whether to allow that.
func NewStore(keys map[string]KeyRecord) *Store {
	return &Store{keys: keys, now: time.Now}
}

// ParseKeySet parses the ATLAS_API_KEYS JSON mapping token -> {name, expires}.
func ParseKeySet(raw string) (map[string]KeyRecord, error) {
	if raw == "" {
		return nil, nil
	}
	var keys map[string]KeyRecord
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("parse API key set: %w", err)
	}
	return keys, nil
}

// Enabled reports whether any keys are configured. When false, Verify accepts
// every request (the explicit escape hatch for unauthenticated deployments).
func (s *Store) Enabled() bool {
	return s != nil && len(s.keys) > 0
}

// Verify checks token against the configured key set.
func (s *Store) Verify(token string) (KeyRecord, error) {
	if !s.Enabled() {
		return KeyRecord{Name: "anonymous"}, nil
	}
	if token == "" {
		return KeyRecord{}, &atlaserrors.UnauthorizedError{Reason: "missing bearer token"}
	}
	record, ok := s.keys[token]
	if !ok {
		return KeyRecord{}, &atlaserrors.UnauthorizedError{Reason: "unknown API key"}
	}
	if record.Expires != nil && record.Expires.Before(s.now()) {
		return KeyRecord{}, &atlaserrors.ExpiredError{Name: record.Name, ExpiredAt: *record.Expires}
	}
	return record, nil
}
