package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreFreshnessBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewStore(NewMemoryBackend(), clock.Now)

	if err := store.Put(ctx, "twitter_search", time.Hour, payload{Name: "a", Count: 1}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	clock.Advance(3599 * time.Second)
	var got payload
	age, ok, err := store.Get(ctx, "twitter_search", &got)
	if err != nil || !ok {
		t.Fatalf("Expected hit at 3599s, got ok=%v err=%v", ok, err)
	}
	if age != 3599*time.Second {
		t.Errorf("Expected age 3599s, got %v", age)
	}
	if got.Name != "a" || got.Count != 1 {
		t.Errorf("Unexpected payload: %+v", got)
	}

	clock.Advance(time.Second)
	_, ok, err = store.Get(ctx, "twitter_search", &got)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected miss when age equals TTL")
	}

	age, ok, err = store.PeekAge(ctx, "twitter_search")
	if err != nil || !ok || age != time.Hour {
		t.Errorf("Expected stale entry to remain observable with age 1h, got %v ok=%v err=%v", age, ok, err)
	}
}

func TestStoreEntryFromTheFuture(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewStore(NewMemoryBackend(), clock.Now)

	if err := store.Put(ctx, "google_trends_rss", 2*time.Hour, payload{Name: "skewed"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(-10 * time.Minute)

	var got payload
	age, ok, err := store.Get(ctx, "google_trends_rss", &got)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected entry stamped in the future to be stale")
	}
	if age != 0 {
		t.Errorf("Expected age clamped to 0, got %v", age)
	}

	age, ok, _ = store.PeekAge(ctx, "google_trends_rss")
	if !ok || age != 0 {
		t.Errorf("Expected peeked age 0, got %v ok=%v", age, ok)
	}
}

func TestStoreMissingKey(t *testing.T) {
	store := NewStore(NewMemoryBackend(), newClock().Now)

	var got payload
	_, ok, err := store.Get(context.Background(), "missing", &got)
	if err != nil || ok {
		t.Errorf("Expected clean miss, got ok=%v err=%v", ok, err)
	}

	if _, ok, _ := store.PeekAge(context.Background(), "missing"); ok {
		t.Error("Expected PeekAge to report missing")
	}
}

func TestStorePutOverwritesAndResetsAge(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewStore(NewMemoryBackend(), clock.Now)

	_ = store.Put(ctx, "k", time.Hour, payload{Name: "old"})
	clock.Advance(50 * time.Minute)
	_ = store.Put(ctx, "k", time.Hour, payload{Name: "new"})
	clock.Advance(20 * time.Minute)

	var got payload
	age, ok, err := store.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Name != "new" || age != 20*time.Minute {
		t.Errorf("Expected new payload aged 20m, got %+v aged %v", got, age)
	}
}

func TestStoreRoundTripPreservesBytes(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), newClock().Now)

	original := json.RawMessage(`{"z":1,"a":[true,null,"x"],"m":{"k":"v"}}`)
	if err := store.Put(ctx, "raw", time.Hour, original); err != nil {
		t.Fatal(err)
	}

	var got json.RawMessage
	if _, ok, err := store.Get(ctx, "raw", &got); err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != string(original) {
		t.Errorf("Expected %s, got %s", original, got)
	}
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newClock()

	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewStore(backend, clock.Now).Put(ctx, "google_trends_rss-GB", 2*time.Hour, payload{Name: "gb"}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "google_trends_rss-GB.json")); err != nil {
		t.Errorf("Expected cache file on disk, got: %v", err)
	}

	reopened, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	var got payload
	age, ok, err := NewStore(reopened, clock.Now).Get(ctx, "google_trends_rss-GB", &got)
	if err != nil || !ok {
		t.Fatalf("Expected hit after reopen, got ok=%v err=%v", ok, err)
	}
	if got.Name != "gb" || age != time.Hour {
		t.Errorf("Unexpected result: %+v aged %v", got, age)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestFileBackendHashesUnsafeKeys(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	entry := &Entry{Key: "../escape/attempt", Payload: []byte(`1`), StoredAt: time.Now(), TTL: time.Minute}
	if err := backend.Save(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, err := backend.Load(ctx, "../escape/attempt")
	if err != nil || got == nil {
		t.Fatalf("Expected entry back, got %v err=%v", got, err)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 || filepath.Ext(files[0].Name()) != ".json" {
		t.Errorf("Expected a single hashed file in cache dir, got %v", files)
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	dir := t.TempDir()
	backend, _ := NewFileBackend(dir)

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := backend.Load(context.Background(), "broken"); err == nil {
		t.Error("Expected error for corrupt cache file")
	}
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "trends.db")

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	clock := newClock()
	store := NewStore(backend, clock.Now)

	if err := store.Put(ctx, "serpapi_trending_now", 12*time.Hour, payload{Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "serpapi_trending_now", 12*time.Hour, payload{Name: "second"}); err != nil {
		t.Fatal(err)
	}
	backend.Close()

	// Migrations must be idempotent on reopen.
	reopened, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("Expected reopen to succeed, got: %v", err)
	}
	defer reopened.Close()

	clock.Advance(11 * time.Hour)
	var got payload
	age, ok, err := NewStore(reopened, clock.Now).Get(ctx, "serpapi_trending_now", &got)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Name != "second" || age != 11*time.Hour {
		t.Errorf("Unexpected result: %+v aged %v", got, age)
	}

	missing, err := reopened.Load(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil entry for missing key, got %v err=%v", missing, err)
	}
}

func TestEntryJSONEnvelope(t *testing.T) {
	entry := Entry{
		Key:      "k",
		Payload:  json.RawMessage(`{"a":1}`),
		StoredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TTL:      90 * time.Minute,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatal(err)
	}

	expected := `{"key":"k","stored_at":"2026-01-01T00:00:00Z","ttl":"1h30m0s","payload":{"a":1}}`
	if string(data) != expected {
		t.Errorf("Expected %s, got %s", expected, data)
	}

	var back Entry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.TTL != entry.TTL || !back.StoredAt.Equal(entry.StoredAt) {
		t.Errorf("Unexpected entry: %+v", back)
	}

	if err := json.Unmarshal([]byte(`{"key":"k","ttl":"soon"}`), &back); err == nil {
		t.Error("Expected error for invalid ttl")
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	if _, err := OpenBackend(context.Background(), Options{Backend: "tape"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
