package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cache slot. The storage timestamp travels with the payload so
// freshness does not depend on backend metadata such as file mtimes.
type Entry struct {
	Key      string
	Payload  json.RawMessage
	StoredAt time.Time
	TTL      time.Duration
}

// Age is the time elapsed since the entry was written, never negative.
func (e *Entry) Age(now time.Time) time.Duration {
	return max(now.Sub(e.StoredAt), 0)
}

// IsFresh is a strict boundary: an entry whose age equals its TTL is stale.
// An entry stamped in the future is stale too.
func (e *Entry) IsFresh(now time.Time) bool {
	if e.StoredAt.After(now) {
		return false
	}
	return e.Age(now) < e.TTL
}

type entryJSON struct {
	Key      string          `json:"key"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      string          `json:"ttl"`
	Payload  json.RawMessage `json:"payload"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Key:      e.Key,
		StoredAt: e.StoredAt,
		TTL:      e.TTL.String(),
		Payload:  e.Payload,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ttl, err := time.ParseDuration(raw.TTL)
	if err != nil {
		return fmt.Errorf("invalid ttl %q: %w", raw.TTL, err)
	}

	*e = Entry{Key: raw.Key, StoredAt: raw.StoredAt, TTL: ttl, Payload: raw.Payload}
	return nil
}

// Backend persists entries. Load returns (nil, nil) when the key is absent.
// Backends never expire entries themselves.
type Backend interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Close() error
}

// Store layers TTL semantics over a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{backend: backend, now: now}
}

// Get decodes a fresh entry into dst and reports its age. Stale entries are
// reported as a miss and left in place.
func (s *Store) Get(ctx context.Context, key string, dst any) (time.Duration, bool, error) {
	entry, err := s.backend.Load(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}
	if entry == nil {
		return 0, false, nil
	}

	now := s.now()
	if !entry.IsFresh(now) {
		return entry.Age(now), false, nil
	}

	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		return 0, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}

	return entry.Age(now), true, nil
}

// Put unconditionally overwrites key and resets its storage time.
func (s *Store) Put(ctx context.Context, key string, ttl time.Duration, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	entry := &Entry{
		Key:      key,
		Payload:  data,
		StoredAt: s.now(),
		TTL:      ttl,
	}

	if err := s.backend.Save(ctx, entry); err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}

	return nil
}

// Peek returns the raw entry regardless of freshness.
func (s *Store) Peek(ctx context.Context, key string) (*Entry, error) {
	entry, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}
	return entry, nil
}

// PeekAge reports the age of key independently of its freshness.
func (s *Store) PeekAge(ctx context.Context, key string) (time.Duration, bool, error) {
	entry, err := s.Peek(ctx, key)
	if err != nil || entry == nil {
		return 0, false, err
	}
	return entry.Age(s.now()), true, nil
}

func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) Close() error {
	return s.backend.Close()
}
