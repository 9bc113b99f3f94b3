package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/syncutils"
	"github.com/alignecoderepos/verstash/pkg/kv"
)

var ErrSnapshotInProgress = errors.New("snapshot already in progress")

// SnapshotManager writes table snapshots, keeps the manifest pointing at the
// newest one and removes the ones it replaces.
type SnapshotManager struct {
	mu     syncutils.Mutex
	dir    string
	logger zerolog.Logger

	nextIndex int
	lastMs    int64
	busy      atomic.Bool
}

func NewSnapshotManager(cfg *config.Config, logger zerolog.Logger) (*SnapshotManager, error) {
	next, err := snapSegments.next(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &SnapshotManager{
		dir:       cfg.DataDir,
		logger:    logger,
		nextIndex: next,
	}, nil
}

// CreateSnapshot writes every entry of table to a new snapshot file and
// points the manifest at it. nextWAL is the first WAL holding writes made
// after the snapshot.
func (sm *SnapshotManager) CreateSnapshot(table *kv.Memory, nextWAL string, lastSeq uint64) error {
	if !sm.busy.CompareAndSwap(false, true) {
		return ErrSnapshotInProgress
	}
	defer sm.busy.Store(false)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	start := time.Now()
	name := snapSegments.name(sm.nextIndex)
	entries, err := writeSnapshotFile(filepath.Join(sm.dir, name), table, lastSeq)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if err := WriteManifest(sm.dir, &Manifest{
		Version:   1,
		Snap:      name,
		NextWAL:   nextWAL,
		LastSeq:   lastSeq,
		CreatedMs: now,
	}); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	sm.nextIndex++
	sm.lastMs = now
	sm.logger.Info().
		Str("snapshot", name).
		Uint64("entries", entries).
		Dur("took", time.Since(start)).
		Msg("snapshot completed")
	return nil
}

// writeSnapshotFile writes table to a temporary file and renames it to path
// once complete.
func writeSnapshotFile(path string, table *kv.Memory, lastSeq uint64) (uint64, error) {
	tmp := path + ".tmp"
	w, err := NewSnapshotWriter(tmp, lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot writer: %w", err)
	}

	var werr error
	table.Range(func(key, value string) bool {
		werr = w.WriteEntry(key, value)
		return werr == nil
	})
	entries := w.count
	if cerr := w.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp, path)
	}
	if werr != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write snapshot: %w", werr)
	}
	return entries, nil
}

// LoadSnapshot loads the snapshot named by the manifest into table. It
// returns the WAL to start replaying from and the snapshot's sequence number.
// Without a manifest both are zero.
func (sm *SnapshotManager) LoadSnapshot(table *kv.Memory) (string, uint64, error) {
	manifest, err := ReadManifest(sm.dir)
	if err != nil || manifest == nil {
		return "", 0, err
	}

	r, err := OpenSnapshotReader(filepath.Join(sm.dir, manifest.Snap))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer r.Close()

	loaded := 0
	for {
		key, value, err := r.ReadEntry()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("failed to read snapshot entry: %w", err)
		}
		if err := table.Set(key, value); err != nil {
			sm.logger.Warn().Err(err).Str("key", key).Msg("dropping snapshot entry rejected by limits")
			continue
		}
		loaded++
	}

	sm.mu.Lock()
	sm.lastMs = manifest.CreatedMs
	sm.mu.Unlock()

	sm.logger.Info().Str("snapshot", manifest.Snap).Int("entries", loaded).Msg("loaded snapshot")
	return manifest.NextWAL, r.LastSeq(), nil
}

// CleanupOldFiles removes every snapshot except the latest. Removal failures
// are logged and skipped.
func (sm *SnapshotManager) CleanupOldFiles() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	names, err := snapSegments.list(sm.dir)
	if err != nil || len(names) < 2 {
		return err
	}
	for _, name := range names[:len(names)-1] {
		if err := os.Remove(filepath.Join(sm.dir, name)); err != nil {
			sm.logger.Warn().Err(err).Str("snapshot", name).Msg("failed to remove old snapshot")
			continue
		}
		sm.logger.Debug().Str("snapshot", name).Msg("removed old snapshot")
	}
	return nil
}

func (sm *SnapshotManager) GetStats() map[string]string {
	names, _ := snapSegments.list(sm.dir)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	return map[string]string{
		"snapshots_total":  strconv.Itoa(len(names)),
		"last_snapshot_ms": strconv.FormatInt(sm.lastMs, 10),
	}
}
