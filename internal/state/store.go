// SMS Archive - Telephony Message Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/smsarchive

// Package state keeps small pieces of sync bookkeeping in a local BadgerDB:
// the conversation store schema version, the run lock that keeps two sync
// runs from overlapping and the result of the last run.
//
// Badger holds an exclusive lock on its directory, so a state directory
// belongs to exactly one live process. The run lock therefore serializes
// runs within that process only. Running several replicas against one
// conversation store needs a shared lease, for example a lock document in
// MongoDB.
package state

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/smsarchive/internal/logging"
	"github.com/tomtom215/smsarchive/internal/models"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("state store is closed")

	// ErrSyncInProgress is returned when another run holds the sync lock.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotFound is returned when no value has been recorded yet.
	ErrNotFound = errors.New("state not found")
)

const (
	keySchemaVersion = "schema:version"
	keyRunLock       = "lock:sync"
	keyLastResult    = "sync:last_result"
)

// Store is the BadgerDB-backed state store.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the state store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{db: db}
	if err := s.clearStaleRunLock(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Msg("State store opened")
	return s, nil
}

// OpenInMemory opens a store that lives only as long as the process.
// Used when no state path is configured and by tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (s *Store) set(key string, value []byte) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SchemaVersion returns the recorded conversation store schema version,
// or 0 when none has been recorded.
func (s *Store) SchemaVersion() (int, error) {
	raw, err := s.get(keySchemaVersion)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", raw, err)
	}
	return v, nil
}

// SetSchemaVersion records the conversation store schema version.
func (s *Store) SetSchemaVersion(v int) error {
	if err := s.set(keySchemaVersion, []byte(strconv.Itoa(v))); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

type runLock struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// AcquireRunLock takes the sync lock for owner. The lock expires after ttl
// so a run that never releases it cannot block syncing forever. The returned release
// function is safe to call more than once and never releases a lock that
// has since been taken by someone else.
func (s *Store) AcquireRunLock(owner string, ttl time.Duration) (func(), error) {
	data, err := json.Marshal(runLock{Owner: owner, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal run lock: %w", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyRunLock))
		switch {
		case err == nil:
			var held runLock
			_ = item.Value(func(val []byte) error { return json.Unmarshal(val, &held) })
			return fmt.Errorf("%w (held by %s since %s)", ErrSyncInProgress, held.Owner, held.AcquiredAt.Format(time.RFC3339))
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(keyRunLock), data).WithTTL(ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := s.releaseRunLock(owner); err != nil {
				logging.Warn().Err(err).Str("owner", owner).Msg("Failed to release sync run lock")
			}
		})
	}
	return release, nil
}

// clearStaleRunLock drops a run lock left behind by a process that exited
// mid-run. No other process can hold the directory while we have it open.
func (s *Store) clearStaleRunLock() error {
	return s.update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyRunLock))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read run lock: %w", err)
		}
		var held runLock
		_ = item.Value(func(val []byte) error { return json.Unmarshal(val, &held) })
		logging.Warn().
			Str("owner", held.Owner).
			Time("acquired_at", held.AcquiredAt).
			Msg("Clearing sync run lock left by a previous process")
		return txn.Delete([]byte(keyRunLock))
	})
}

func (s *Store) releaseRunLock(owner string) error {
	return s.update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyRunLock))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var held runLock
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &held) }); err != nil {
			return err
		}
		if held.Owner != owner {
			return nil
		}
		return txn.Delete([]byte(keyRunLock))
	})
}

// RecordSyncResult stores res as the most recent sync result.
func (s *Store) RecordSyncResult(res *models.SyncResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal sync result: %w", err)
	}
	if err := s.set(keyLastResult, data); err != nil {
		return fmt.Errorf("write sync result: %w", err)
	}
	return nil
}

// LastSyncResult returns the most recent sync result, or ErrNotFound.
func (s *Store) LastSyncResult() (*models.SyncResult, error) {
	raw, err := s.get(keyLastResult)
	if err != nil {
		return nil, err
	}
	var res models.SyncResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode sync result: %w", err)
	}
	return &res, nil
}
