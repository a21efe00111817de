// Package storage persists growth runs and their snapshots in BadgerDB.
//
// A run is created once per grown text. Snapshots are saved under the run at
// any generation and can be loaded back into a growth.Engine with Restore.
// When a Sealer is configured, snapshot payloads are encrypted at rest; run
// metadata stays readable so runs can be listed without the passphrase.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/rhizome/pkg/encryption"
	"github.com/orneryd/rhizome/pkg/growth"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixRun      = byte(0x01) // runs:runID -> Run
	prefixSnapshot = byte(0x02) // snapshots:runID:generation -> Snapshot
)

// Store persists runs and snapshots using BadgerDB.
//
// Key Structure:
//   - Runs: 0x01 + runID -> JSON(Run)
//   - Snapshots: 0x02 + runID + 0x00 + big-endian uint64 generation -> JSON(Snapshot), optionally sealed
//
// Big-endian generations keep a run's snapshots in generation order, so the
// latest one is found with a single reverse seek.
//
// Example:
//
//	store, err := storage.Open(storage.Options{DataDir: "./data"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	run, _ := store.CreateRunFor(storage.NewRunID(), text, cfg)
//	_ = store.SaveSnapshot(run.ID, engine.Snapshot())
//
//	snap, _ := store.LatestSnapshot(run.ID)
//	_ = engine.Restore(snap)
type Store struct {
	db     *badger.DB
	sealer *encryption.Sealer
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// Options configures Open.
type Options struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Sealer encrypts snapshot payloads at rest. Nil stores plain JSON.
	Sealer *encryption.Sealer

	// Logger receives store events and BadgerDB warnings.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage")

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(badgerLogger{logger})

	// Snapshots are small; keep the footprint modest.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &Store{db: db, sealer: opts.Sealer, logger: logger}, nil
}

// OpenInMemory opens an unsealed, memory-only store.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true})
}

// Close closes the store. Further calls return ErrStorageClosed; closing
// twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// =============================================================================
// Keys
// =============================================================================

func runKey(id string) []byte {
	return append([]byte{prefixRun}, id...)
}

// snapshotPrefix returns the prefix for scanning a run's snapshots.
// Format: prefix + runID + 0x00
func snapshotPrefix(runID string) []byte {
	key := make([]byte, 0, len(runID)+2)
	key = append(key, prefixSnapshot)
	key = append(key, runID...)
	return append(key, 0x00)
}

// Format: prefix + runID + 0x00 + generation
func snapshotKey(runID string, generation int) []byte {
	return binary.BigEndian.AppendUint64(snapshotPrefix(runID), uint64(generation))
}

// extractGeneration reads the generation suffix of a snapshot key.
func extractGeneration(key []byte) int {
	if len(key) < 8 {
		return -1
	}
	return int(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// =============================================================================
// Runs
// =============================================================================

// CreateRunFor registers run id grown with cfg. The configuration is kept
// with the run so its snapshots can be restored into a matching engine.
// Returns ErrAlreadyExists when the ID is taken.
func (s *Store) CreateRunFor(id, text string, cfg growth.Config) (*Run, error) {
	return s.createRun(id, text, cfg.Seed, &cfg)
}

func (s *Store) createRun(id, text string, seed int64, engine *growth.Config) (*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !validRunID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}

	now := time.Now().UTC()
	run := &Run{
		ID:        id,
		Text:      text,
		Seed:      seed,
		CreatedAt: now,
		UpdatedAt: now,
		Engine:    engine,
		Sealed:    s.sealer != nil,
	}
	data, err := serializeRun(run)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(id)); err == nil {
			return fmt.Errorf("run %s: %w", id, ErrAlreadyExists)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(runKey(id), data)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("run created", "run", id, "chars", len([]rune(text)), "sealed", run.Sealed)
	return run, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(id string) (*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var run *Run
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		run, err = getRun(txn, id)
		return err
	})
	return run, err
}

func getRun(txn *badger.Txn, id string) (*Run, error) {
	item, err := txn.Get(runKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var run *Run
	err = item.Value(func(val []byte) error {
		var decodeErr error
		run, decodeErr = deserializeRun(val)
		return decodeErr
	})
	return run, err
}

// ListRuns returns every run, oldest first.
func (s *Store) ListRuns() ([]*Run, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixRun}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var run *Run
			if err := it.Item().Value(func(val []byte) error {
				var decodeErr error
				run, decodeErr = deserializeRun(val)
				return decodeErr
			}); err != nil {
				s.logger.Warn("skipping unreadable run", "key", string(it.Item().Key()[1:]), "error", err)
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(runs, func(a, b *Run) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return runs, nil
}

// DeleteRun removes a run and all of its snapshots.
func (s *Store) DeleteRun(id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.GetRun(id); err != nil {
		return err
	}

	keys, err := s.snapshotKeys(id)
	if err != nil {
		return err
	}

	if err := s.deleteKeys(append(keys, runKey(id))); err != nil {
		return err
	}
	s.logger.Info("run deleted", "run", id, "snapshots", len(keys))
	return nil
}

// =============================================================================
// Snapshots
// =============================================================================

// SaveSnapshot stores snap under runID at snap.Generation, replacing any
// snapshot already saved at that generation, and updates the run summary.
func (s *Store) SaveSnapshot(runID string, snap growth.Snapshot) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key := snapshotKey(runID, snap.Generation)
	payload, err := encodeSnapshot(&snap, s.sealer, key)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		run, err := getRun(txn, runID)
		if err != nil {
			return err
		}
		if _, err := txn.Get(key); err == badger.ErrKeyNotFound {
			run.Snapshots++
		} else if err != nil {
			return err
		}
		if snap.Generation >= run.Generation {
			run.Generation = snap.Generation
			run.Nodes = len(snap.Nodes)
		}
		run.UpdatedAt = time.Now().UTC()

		data, err := serializeRun(run)
		if err != nil {
			return err
		}
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set(runKey(runID), data)
	})
}

// LoadSnapshot returns the snapshot saved at generation.
func (s *Store) LoadSnapshot(runID string, generation int) (growth.Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return growth.Snapshot{}, err
	}

	key := snapshotKey(runID, generation)
	var snap growth.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("snapshot %s@%d: %w", runID, generation, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			snap, decodeErr = decodeSnapshot(val, s.sealer, key)
			return decodeErr
		})
	})
	return snap, err
}

// LatestSnapshot returns the snapshot with the highest generation.
func (s *Store) LatestSnapshot(runID string) (growth.Snapshot, error) {
	if err := s.checkOpen(); err != nil {
		return growth.Snapshot{}, err
	}

	prefix := snapshotPrefix(runID)
	var snap growth.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return fmt.Errorf("snapshot %s: %w", runID, ErrNotFound)
		}
		key := it.Item().KeyCopy(nil)
		return it.Item().Value(func(val []byte) error {
			var decodeErr error
			snap, decodeErr = decodeSnapshot(val, s.sealer, key)
			return decodeErr
		})
	})
	return snap, err
}

// ListSnapshots returns the saved generations of a run in ascending order.
func (s *Store) ListSnapshots(runID string) ([]int, error) {
	keys, err := s.snapshotKeys(runID)
	if err != nil {
		return nil, err
	}
	gens := make([]int, 0, len(keys))
	for _, k := range keys {
		gens = append(gens, extractGeneration(k))
	}
	return gens, nil
}

// Prune deletes all but the newest keep snapshots of a run and returns the
// number deleted.
func (s *Store) Prune(runID string, keep int) (int, error) {
	keys, err := s.snapshotKeys(runID)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	drop := len(keys) - keep
	if drop <= 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys[:drop] {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		run, err := getRun(txn, runID)
		if err != nil {
			return err
		}
		run.Snapshots -= drop
		data, err := serializeRun(run)
		if err != nil {
			return err
		}
		return txn.Set(runKey(runID), data)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("snapshots pruned", "run", runID, "dropped", drop)
	return drop, nil
}

// deleteKeys deletes keys, committing whenever a transaction fills up.
func (s *Store) deleteKeys(keys [][]byte) error {
	for len(keys) > 0 {
		txn := s.db.NewTransaction(true)
		n := 0
		for ; n < len(keys); n++ {
			if err := txn.Delete(keys[n]); err == badger.ErrTxnTooBig {
				break
			} else if err != nil {
				txn.Discard()
				return err
			}
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

// snapshotKeys returns copies of a run's snapshot keys in generation order.
func (s *Store) snapshotKeys(runID string) ([][]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := snapshotPrefix(runID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}
