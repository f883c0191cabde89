package cache

import (
	"context"
	"fmt"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Options struct {
	Backend    string
	Dir        string
	SQLitePath string
	Redis      RedisOptions
}

// OpenBackend builds the Backend selected by opts.Backend.
func OpenBackend(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileBackend(opts.Dir)
	case BackendSQLite:
		return NewSQLiteBackend(opts.SQLitePath)
	case BackendRedis:
		return NewRedisBackend(ctx, opts.Redis)
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", opts.Backend)
	}
}
