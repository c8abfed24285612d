// Package persistence implements the atomic load/save contract for the
// catalog, auth-token and data-store files: every write serializes to a
// temporary file in the target's own directory, fsyncs it, then renames
// it over the target so a concurrent reader never observes a partial
// write. A gofrs/flock advisory lock on the home directory guards the
// write-temp-fsync-rename sequence against a second Kiwibes process
// pointed at the same home directory.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// Store is the on-disk persistence boundary for a single Kiwibes home
// directory: the job catalog, the auth-token set, and the data store.
type Store struct {
	home   string
	lock   *flock.Flock
	logger zerolog.Logger
}

// New creates a Store rooted at home. Each write takes the advisory
// lock file (kiwibes.lock) in home and releases it when the write is
// done; no lock is held between writes.
func New(home string, logger zerolog.Logger) *Store {
	return &Store{
		home:   home,
		lock:   flock.New(filepath.Join(home, "kiwibes.lock")),
		logger: logger.With().Str("component", "persistence").Logger(),
	}
}

// catalogRecord is the on-disk shape of a single job entry: the
// Job fields minus the Name (which is the map key).
type catalogRecord = catalog.Job

// LoadCatalog reads kiwibes.json. A missing file yields
// kerrors.NoDatabaseFile; malformed JSON yields kerrors.JSONParseFail;
// a record that fails schema validation yields
// kerrors.JobDescriptionInvalid. Every loaded job's status is
// normalized to stopped, matching the "on-disk status is always
// stopped" crash-recovery rule.
func (s *Store) LoadCatalog(path string) (map[string]*catalog.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.New(kerrors.NoDatabaseFile, fmt.Sprintf("catalog file not found: %s", path))
		}
		return nil, kerrors.New(kerrors.JSONParseFail, err.Error())
	}

	var raw map[string]*catalogRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return nil, kerrors.New(kerrors.JobDescriptionInvalid, err.Error())
		}
		return nil, kerrors.New(kerrors.JSONParseFail, err.Error())
	}

	// Decoded a second time as raw fields to tell an absent key apart
	// from its zero value.
	var present map[string]map[string]json.RawMessage
	_ = json.Unmarshal(data, &present)

	jobs := make(map[string]*catalog.Job, len(raw))
	for name, rec := range raw {
		if rec == nil || len(rec.Program) == 0 {
			return nil, kerrors.New(kerrors.JobDescriptionInvalid, fmt.Sprintf("job %q: missing program", name))
		}
		for _, key := range []string{"schedule", "max-runtime"} {
			if _, ok := present[name][key]; !ok {
				return nil, kerrors.New(kerrors.JobDescriptionInvalid, fmt.Sprintf("job %q: missing %s", name, key))
			}
		}
		if rec.MaxRuntime < 0 {
			return nil, kerrors.New(kerrors.JobDescriptionInvalid, fmt.Sprintf("job %q: negative max-runtime", name))
		}
		rec.Name = name
		rec.Status = catalog.StatusStopped
		rec.StartTime = 0
		jobs[name] = rec
	}

	return jobs, nil
}

// SaveCatalog atomically writes the catalog to path. An empty catalog
// is persisted as the JSON literal null, per the on-disk contract.
// Every persisted job's status is forced to "stopped" regardless of
// its in-memory value, so a crashed server always recovers all-stopped.
func (s *Store) SaveCatalog(path string, jobs map[string]*catalog.Job) error {
	var payload interface{}
	if len(jobs) == 0 {
		payload = nil
	} else {
		out := make(map[string]*catalog.Job, len(jobs))
		for name, j := range jobs {
			snapshot := j.Clone()
			snapshot.Status = catalog.StatusStopped
			snapshot.StartTime = 0
			out[name] = snapshot
		}
		payload = out
	}

	return s.writeAtomic(path, payload)
}

// LoadAuthTokens reads kiwibes.auth. A missing or malformed file
// yields an empty set, per AuthGuard's fail-closed contract.
func (s *Store) LoadAuthTokens(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("auth file malformed, treating as empty")
		return nil
	}
	return tokens
}

// SaveAuthTokens atomically writes the token set to path.
func (s *Store) SaveAuthTokens(path string, tokens []string) error {
	return s.writeAtomic(path, tokens)
}

// LoadDataStore reads the key/value store file; a missing file yields
// an empty map rather than an error, since the data store has no
// equivalent of ERROR_NO_DATABASE_FILE.
func (s *Store) LoadDataStore(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, kerrors.New(kerrors.JSONParseFail, err.Error())
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, kerrors.New(kerrors.JSONParseFail, err.Error())
	}
	return entries, nil
}

// SaveDataStore atomically writes the key/value store to path.
func (s *Store) SaveDataStore(path string, entries map[string]string) error {
	return s.writeAtomic(path, entries)
}

// writeAtomic serializes v to JSON and atomically replaces path with
// it: write to a temp file in the same directory, fsync, rename. The
// rename is the only step that observably changes the filesystem, and
// it is performed while holding the home-directory advisory lock so a
// second process sharing this home cannot interleave a write.
func (s *Store) writeAtomic(path string, v interface{}) error {
	if err := s.lock.Lock(); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to acquire home directory lock")
		return nil // accepted risk per §7 propagation policy: log, stay authoritative in memory
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to marshal for persistence")
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".kiwibes-tmp-*")
	if err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to create temp file for atomic write")
		return nil
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.logger.Error().Err(err).Str("path", path).Msg("failed to write temp file")
		return nil
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.logger.Error().Err(err).Str("path", path).Msg("failed to fsync temp file")
		return nil
	}
	if err := tmp.Close(); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to close temp file")
		return nil
	}

	if err := os.Rename(tmpName, path); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to rename temp file into place")
		return nil
	}

	return nil
}
