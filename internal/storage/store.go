// Package storage is a durable kv.Backend. Every mutation is appended to a
// write-ahead log before it is acknowledged; snapshots compact the log and
// recovery rebuilds the table from the latest snapshot plus the WAL tail.
package storage

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/logging"
	"github.com/alignecoderepos/verstash/internal/syncutils"
	"github.com/alignecoderepos/verstash/pkg/kv"
)

// Store is a WAL-backed key-value table. It is safe for concurrent use.
type Store struct {
	mu              syncutils.Mutex
	table           *kv.Memory
	walManager      *WALManager
	snapshotManager *SnapshotManager
	config          *config.Config
	logger          zerolog.Logger

	seq    uint64
	closed bool

	stats Stats
}

var (
	_ = kv.Backend(&Store{})
	_ = kv.KeyLister(&Store{})
)

// Stats holds runtime statistics
type Stats struct {
	CmdSet          atomic.Uint64
	CmdDel          atomic.Uint64
	CmdClear        atomic.Uint64
	ReplayedRecords atomic.Uint64
	StartTimeMs     int64
}

// Open opens the store in cfg.DataDir, recovering whatever it holds.
func Open(cfg *config.Config) (*Store, error) {
	logger := logging.Component("storage")

	walManager, err := NewWALManager(cfg)
	if err != nil {
		return nil, err
	}

	snapshotManager, err := NewSnapshotManager(cfg, logger)
	if err != nil {
		walManager.Close()
		return nil, err
	}

	s := &Store{
		table: kv.NewMemoryWithLimits(kv.Limits{
			MaxKeyBytes:   cfg.MaxKeyBytes,
			MaxValueBytes: cfg.MaxValueBytes,
			QuotaBytes:    cfg.QuotaBytes,
		}),
		walManager:      walManager,
		snapshotManager: snapshotManager,
		config:          cfg,
		logger:          logger,
	}
	s.stats.StartTimeMs = time.Now().UnixMilli()

	if err := s.recover(); err != nil {
		walManager.Close()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}

	return s, nil
}

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, kv.ErrClosed
	}
	return s.table.Get(key)
}

// Set stores value under key. The write is applied to the table first so
// that limits are enforced, then logged; a failed WAL write rolls it back.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.stats.CmdSet.Add(1)

	prev, existed, _ := s.table.Get(key)
	if err := s.table.Set(key, value); err != nil {
		return err
	}

	record := &WALRecord{Type: RecordTypeSET, Key: key, Value: []byte(value)}
	if err := s.appendLocked(record); err != nil {
		if existed {
			s.table.Set(key, prev)
		} else {
			s.table.Remove(key)
		}
		return fmt.Errorf("WAL write failed: %w", err)
	}

	s.maybeSnapshotLocked()
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.stats.CmdDel.Add(1)

	if _, exists, _ := s.table.Get(key); !exists {
		return nil
	}

	if err := s.appendLocked(&WALRecord{Type: RecordTypeDEL, Key: key}); err != nil {
		return fmt.Errorf("WAL write failed: %w", err)
	}
	s.table.Remove(key)

	s.maybeSnapshotLocked()
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.stats.CmdClear.Add(1)

	if err := s.appendLocked(&WALRecord{Type: RecordTypeCLEAR}); err != nil {
		return fmt.Errorf("WAL write failed: %w", err)
	}
	return s.table.Clear()
}

func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, kv.ErrClosed
	}
	return s.table.Len()
}

func (s *Store) Key(i int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, kv.ErrClosed
	}
	return s.table.Key(i)
}

func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	return s.table.Keys()
}

// Snapshot compacts the WAL into a new snapshot.
func (s *Store) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	return s.snapshotLocked()
}

// Close syncs and closes the WAL. Further calls fail with kv.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.walManager.Close()
}

// GetStats returns table, WAL and snapshot statistics
func (s *Store) GetStats() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, _ := s.table.Len()
	stats := map[string]string{
		"uptime_ms":        strconv.FormatInt(time.Now().UnixMilli()-s.stats.StartTimeMs, 10),
		"keys":             strconv.Itoa(keys),
		"used_bytes":       strconv.FormatInt(s.table.UsedBytes(), 10),
		"cmd_set":          strconv.FormatUint(s.stats.CmdSet.Load(), 10),
		"cmd_del":          strconv.FormatUint(s.stats.CmdDel.Load(), 10),
		"cmd_clear":        strconv.FormatUint(s.stats.CmdClear.Load(), 10),
		"replayed_records": strconv.FormatUint(s.stats.ReplayedRecords.Load(), 10),
		"wal_current":      s.walManager.CurrentName(),
		"wal_seq":          strconv.FormatUint(s.seq, 10),
	}
	for k, v := range s.snapshotManager.GetStats() {
		stats[k] = v
	}
	return stats
}

func (s *Store) appendLocked(record *WALRecord) error {
	record.Seq = s.seq + 1
	if err := s.walManager.AppendRecord(record); err != nil {
		return err
	}
	s.seq = record.Seq
	return nil
}

// maybeSnapshotLocked compacts once the current WAL outgrows wal_max_bytes.
// Failures are logged; the WAL still holds every write.
func (s *Store) maybeSnapshotLocked() {
	if s.config.WALMaxBytes <= 0 || s.walManager.CurrentSize() < s.config.WALMaxBytes {
		return
	}
	if err := s.snapshotLocked(); err != nil {
		s.logger.Error().Err(err).Msg("failed to create snapshot")
	}
}

func (s *Store) snapshotLocked() error {
	prevWAL := s.walManager.CurrentName()

	nextWAL, err := s.walManager.Rotate()
	if err != nil {
		return fmt.Errorf("failed to rotate WAL: %w", err)
	}

	if err := s.snapshotManager.CreateSnapshot(s.table, nextWAL, s.seq); err != nil {
		return err
	}

	if err := s.snapshotManager.CleanupOldFiles(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cleanup old snapshots")
	}
	if err := s.walManager.Prune(nextWAL); err != nil {
		s.logger.Warn().Err(err).Str("wal", prevWAL).Msg("failed to delete old WALs")
	}
	return nil
}
