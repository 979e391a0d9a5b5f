package dataset

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	errx "github.com/insight-core/server/internal/core/error"
)

// Registry resolves file ids to dataset handles. The orchestrator only reads
// from it; registration happens once per upload.
type Registry interface {
	Lookup(ctx context.Context, fileID string) (*Handle, error)
}

// Store owns ingested datasets: the DuckDB tables plus their handles. Handles
// are immutable after registration, so they are shared without copying across
// all concurrent turns. A TTL cache keeps hot handles cheap to resolve while
// the authoritative map retains everything for the process lifetime.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	handles map[string]*Handle

	cache *ttlcache.Cache[string, *Handle]
}

// NewStore creates a dataset store over an opened DuckDB handle.
func NewStore(db *sql.DB, cacheTTL time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	cache := ttlcache.New[string, *Handle](
		ttlcache.WithTTL[string, *Handle](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Handle](),
	)
	go cache.Start()

	return &Store{
		db:      db,
		handles: make(map[string]*Handle),
		cache:   cache,
	}
}

// DB exposes the underlying database for the executor.
func (s *Store) DB() *sql.DB { return s.db }

// Register ingests a CSV under the given file id and records its handle.
func (s *Store) Register(ctx context.Context, fileID, csvPath string) (*Handle, error) {
	h, err := IngestCSV(ctx, s.db, fileID, csvPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.handles[fileID] = h
	s.mu.Unlock()
	s.cache.Set(fileID, h, ttlcache.DefaultTTL)

	return h, nil
}

// Lookup resolves a handle by file id, or fails with the dataset-not-bound
// caller error.
func (s *Store) Lookup(ctx context.Context, fileID string) (*Handle, error) {
	if item := s.cache.Get(fileID); item != nil {
		return item.Value(), nil
	}

	s.mu.RLock()
	h, ok := s.handles[fileID]
	s.mu.RUnlock()
	if !ok {
		return nil, errx.DatasetNotBound(fileID)
	}

	s.cache.Set(fileID, h, ttlcache.DefaultTTL)
	return h, nil
}

// Close stops the handle cache janitor.
func (s *Store) Close() {
	s.cache.Stop()
}
