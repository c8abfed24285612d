// Package datastore implements the byte-capped string-to-string table
// jobs use for inter-run state, persisted as a single JSON file on
// every mutation.
package datastore

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// Persister is the subset of the persistence store the data store
// needs.
type Persister interface {
	SaveDataStore(path string, entries map[string]string) error
}

// DataStore is the in-memory, size-capped key/value table.
type DataStore struct {
	mu      sync.RWMutex
	entries map[string]string
	size    int // sum of len(key)+len(value) across all entries

	maxBytes int
	store    Persister
	path     string
	logger   zerolog.Logger
}

// New creates a DataStore seeded with entries (typically loaded from
// persistence at boot), capped at maxBytes total key+value bytes.
func New(entries map[string]string, maxBytes int, store Persister, path string, logger zerolog.Logger) *DataStore {
	if entries == nil {
		entries = make(map[string]string)
	}

	size := 0
	for k, v := range entries {
		size += len(k) + len(v)
	}

	return &DataStore{
		entries:  entries,
		size:     size,
		maxBytes: maxBytes,
		store:    store,
		path:     path,
		logger:   logger.With().Str("component", "datastore").Logger(),
	}
}

// Write adds a new key. Fails with DataKeyTaken if the key already
// exists, or DataStoreFull if adding it would exceed the configured
// cap.
func (d *DataStore) Write(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[key]; exists {
		return kerrors.New(kerrors.DataKeyTaken, "key already exists: "+key)
	}

	added := len(key) + len(value)
	if d.size+added > d.maxBytes {
		return kerrors.New(kerrors.DataStoreFull, "data store capacity exceeded")
	}

	d.entries[key] = value
	d.size += added
	d.persistLocked()
	return nil
}

// Read returns the value for key, or DataKeyUnknown.
func (d *DataStore) Read(key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.entries[key]
	if !ok {
		return "", kerrors.New(kerrors.DataKeyUnknown, "key not found: "+key)
	}
	return v, nil
}

// Clear removes a single key, or DataKeyUnknown if absent.
func (d *DataStore) Clear(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.entries[key]
	if !ok {
		return kerrors.New(kerrors.DataKeyUnknown, "key not found: "+key)
	}

	delete(d.entries, key)
	d.size -= len(key) + len(v)
	d.persistLocked()
	return nil
}

// ClearAll removes every key, reporting the count removed.
func (d *DataStore) ClearAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.entries)
	d.entries = make(map[string]string)
	d.size = 0
	d.persistLocked()
	return n
}

// Keys returns all keys, unordered.
func (d *DataStore) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	return keys
}

func (d *DataStore) persistLocked() {
	if d.store == nil {
		return
	}
	if err := d.store.SaveDataStore(d.path, d.entries); err != nil {
		d.logger.Error().Err(err).Msg("failed to persist data store")
	}
}
