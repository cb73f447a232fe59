// Package kvstore implements a persistent key-value cache backed by pogreb.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/akrylysov/pogreb"
	"github.com/fxamacker/cbor/v2"

	"github.com/chainledger/wallet-indexer/log"
	"github.com/chainledger/wallet-indexer/metrics"
)

// How long OpenKVStore waits for pogreb before continuing without the cache.
const defaultOpenTimeout = 30 * time.Second

var (
	// Keys must be deterministic so that the same request always maps to
	// the same entry. Timestamps keep nanoseconds.
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	var err error
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// A key in the KVStore.
type CacheKey []byte

// GenerateCacheKey derives the key of a cached call from its name and parameters.
func GenerateCacheKey(methodName string, params ...interface{}) CacheKey {
	raw, err := encMode.Marshal([]interface{}{methodName, params})
	if err != nil {
		// Params are plain scalars in practice; anything else is a programming error.
		panic(fmt.Sprintf("kvstore: unencodable cache key %s: %v", methodName, err))
	}
	return CacheKey(raw)
}

// Pretty returns a human-readable version of the cache key, for logs only.
func (cacheKey CacheKey) Pretty() string {
	var pretty string
	var parsed interface{}
	if err := decMode.Unmarshal(cacheKey, &parsed); err == nil {
		pretty = fmt.Sprintf("%+v", parsed)
	} else {
		pretty = fmt.Sprintf("%x", []byte(cacheKey))
	}
	if len(pretty) > 100 {
		pretty = pretty[:95] + "[...]"
	}
	return pretty
}

// A key-value store. Typed access goes through GetFromCacheOrCall, which
// takes the KVStore as an argument so it can use generics.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Close() error
}

type pogrebKVStore struct {
	db *pogreb.DB

	path    string
	logger  *log.Logger
	metrics *metrics.AnalysisMetrics // if nil, no metrics are emitted

	// Set once pogreb has opened; opening may finish in a background goroutine.
	initialized atomic.Bool
}

var _ KVStore = (*pogrebKVStore)(nil)

// Get implements KVStore.
func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	if !s.initialized.Load() {
		return nil, fmt.Errorf("kvstore: not initialized yet")
	}
	return s.db.Get(key)
}

// Has implements KVStore.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	if !s.initialized.Load() {
		return false, nil
	}
	return s.db.Has(key)
}

// Put implements KVStore. Writes before pogreb has opened are dropped.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	if !s.initialized.Load() {
		s.logger.Debug("skipping write to uninitialized KVStore", "key", CacheKey(key).Pretty())
		return nil
	}
	return s.db.Put(key, value)
}

// Close implements KVStore.
func (s *pogrebKVStore) Close() error {
	if !s.initialized.Load() {
		// A reindex in progress is abandoned and restarts on next open.
		s.logger.Warn("skipping closing uninitialized KVStore")
		return nil
	}
	s.logger.Info("closing KVStore", "path", s.path)
	return s.db.Close()
}

// pruneIndexBackups removes the index backups pogreb leaves behind on
// every unclean shutdown. pogreb renames stale indexes to <name>.bac,
// and a crash-looping process grows them to <name>.bac.bac.bac... until
// the names exceed filesystem limits.
func (s *pogrebKVStore) pruneIndexBackups() {
	matches, err := filepath.Glob(filepath.Join(s.path, "*.bac"))
	if err != nil {
		s.logger.Warn("failed to list pogreb index backups", "err", err)
		return
	}
	for _, f := range matches {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to delete pogreb index backup", "file", f, "err", err)
		}
	}
}

func (s *pogrebKVStore) open() error {
	s.pruneIndexBackups()

	s.logger.Info("opening KVStore", "path", s.path)
	db, err := pogreb.Open(s.path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		s.logger.Error("failed to open pogreb store", "path", s.path, "err", err)
		return err
	}

	s.db = db
	s.initialized.Store(true)
	s.logger.Info("KVStore opened", "path", s.path, "entries", db.Count())
	return nil
}

// OpenKVStore opens the store at `path`, creating it if needed.
// `metrics` can be `nil`, in which case no metrics are emitted during operation.
//
// After a crash pogreb rebuilds its index on open, which can take hours for a
// large store. If opening takes longer than 30 seconds, the store is returned
// anyway and behaves as an always-missing cache until the rebuild completes.
func OpenKVStore(logger *log.Logger, path string, metrics *metrics.AnalysisMetrics) (KVStore, error) {
	return openKVStore(logger, path, metrics, defaultOpenTimeout)
}

func openKVStore(logger *log.Logger, path string, metrics *metrics.AnalysisMetrics, timeout time.Duration) (KVStore, error) {
	store := &pogrebKVStore{
		logger:  logger,
		path:    path,
		metrics: metrics,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- store.open()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return store, nil
	case <-time.After(timeout):
		logger.Warn("KVStore is still opening, continuing without cache until it is ready", "path", path)
		return store, nil
	}
}

var errNoSuchKey = errors.New("no such key")

func countRead(cache KVStore, status metrics.CacheReadStatus) {
	if s, ok := cache.(*pogrebKVStore); ok && s.metrics != nil {
		s.metrics.LocalCacheReads(status).Inc()
	}
}

// fetchTypedValue fetches the value of `key` from the cache, interpreted as a `Value`.
func fetchTypedValue[Value any](cache KVStore, key CacheKey, value *Value) error {
	isCached, err := cache.Has(key)
	if err != nil {
		countRead(cache, metrics.CacheReadStatusError)
		return err
	}
	if !isCached {
		countRead(cache, metrics.CacheReadStatusMiss)
		return errNoSuchKey
	}
	raw, err := cache.Get(key)
	if err != nil {
		countRead(cache, metrics.CacheReadStatusError)
		return fmt.Errorf("failed to fetch key %s from cache: %w", key.Pretty(), err)
	}
	if err = decMode.Unmarshal(raw, value); err != nil {
		countRead(cache, metrics.CacheReadStatusBadValue)
		return fmt.Errorf("failed to unmarshal the value for key %s from cache into %T: %w", key.Pretty(), value, err)
	}
	countRead(cache, metrics.CacheReadStatusHit)
	return nil
}

// GetFromCacheOrCall returns the value cached under `key`. On a miss, or if
// the cached value cannot be decoded, it calls `valueFunc` and caches the
// result.
// If `volatile` is true, `valueFunc` is always called, and the result is not cached.
func GetFromCacheOrCall[Value any](cache KVStore, volatile bool, key CacheKey, valueFunc func() (*Value, error)) (*Value, error) {
	if volatile {
		return valueFunc()
	}

	var cached Value
	switch err := fetchTypedValue(cache, key, &cached); {
	case err == nil:
		return &cached, nil
	case errors.Is(err, errNoSuchKey):
	default:
		if s, ok := cache.(*pogrebKVStore); ok {
			s.logger.Warn("error fetching from cache", "key", key.Pretty(), "err", err)
		}
	}

	computed, err := valueFunc()
	if err != nil {
		return nil, err
	}
	raw, err := encMode.Marshal(computed)
	if err != nil {
		return computed, fmt.Errorf("failed to encode %T for cache: %w", computed, err)
	}
	return computed, cache.Put(key, raw)
}
