package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Store defines a byte-oriented key/value backend with per-entry TTL.
// Implementations wrap backend failures with ErrUnavailable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

var (
	// ErrUnavailable marks a failure of the underlying store.
	ErrUnavailable = errors.New("cache unavailable")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Backend names accepted by Open.
const (
	BackendNone    = "none"
	BackendMemory  = "memory"
	BackendDisk    = "disk"
	BackendSQLite  = "sqlite"
	BackendBadger  = "badger"
	BackendLayered = "layered"
)

// Open builds the store for backend. path is a directory for disk, badger
// and layered backends, and a database file for sqlite. A nil Store is
// returned for BackendNone.
func Open(backend, path string, ttl time.Duration, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(ttl, 10*time.Minute), nil
	case BackendDisk:
		return NewDiskStore(path, ttl), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendBadger:
		return OpenBadger(path, false, logger)
	case BackendLayered:
		disk, err := OpenSQLite(filepath.Join(path, "grounding.db"))
		if err != nil {
			return nil, err
		}
		return NewLayeredStore(NewMemoryStore(time.Hour, 10*time.Minute), disk), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: none, memory, disk, sqlite, badger, layered)", ErrUnknownBackend, backend)
	}
}
