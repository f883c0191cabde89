package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteBackend stores entries in a single table of an embedded database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteBackend{db: db}, nil
}

func runMigrations(db *sql.DB) (uint, bool, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, false, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

func (b *SQLiteBackend) Load(ctx context.Context, key string) (*Entry, error) {
	var (
		payload  string
		storedAt string
		ttl      int64
	)

	err := b.db.QueryRowContext(ctx, `
		SELECT payload, stored_at, ttl_ns
		FROM cache_entries
		WHERE key = ?
	`, key).Scan(&payload, &storedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, storedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored_at %q: %w", storedAt, err)
	}

	return &Entry{
		Key:      key,
		Payload:  []byte(payload),
		StoredAt: at,
		TTL:      time.Duration(ttl),
	}, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, entry *Entry) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, stored_at, ttl_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at,
			ttl_ns = excluded.ttl_ns
	`, entry.Key, string(entry.Payload), entry.StoredAt.UTC().Format(time.RFC3339Nano), int64(entry.TTL))
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
