package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/syncutils"
)

// WALManager owns the WAL being appended to and the older files behind it.
// A new manager always starts a fresh file numbered after the last one on
// disk, so files left by a previous run are never appended to.
type WALManager struct {
	mu         syncutils.Mutex
	dir        string
	maxBytes   int64
	syncPolicy string

	cur   *WAL
	index int
}

func NewWALManager(cfg *config.Config) (*WALManager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	first, err := walSegments.next(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	m := &WALManager{
		dir:        cfg.DataDir,
		maxBytes:   cfg.WALMaxBytes,
		syncPolicy: strings.ToLower(cfg.SyncPolicy),
	}
	if err := m.openLocked(first); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WALManager) openLocked(index int) error {
	wal, err := NewWAL(m.dir, index, m.maxBytes, m.syncPolicy)
	if err != nil {
		return fmt.Errorf("open WAL %d: %w", index, err)
	}
	m.cur = wal
	m.index = index
	return nil
}

// AppendRecord appends to the current WAL, moving to a new file first when
// the current one is full.
func (m *WALManager) AppendRecord(record *WALRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur.IsFull() {
		if err := m.rotateLocked(); err != nil {
			return err
		}
	}
	return m.cur.Append(record)
}

// Rotate closes the current WAL, starts the next one and returns its name.
func (m *WALManager) Rotate() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rotateLocked(); err != nil {
		return "", err
	}
	return walSegments.name(m.index), nil
}

func (m *WALManager) rotateLocked() error {
	if err := m.cur.Close(); err != nil {
		return err
	}
	return m.openLocked(m.index + 1)
}

// ReplayPaths returns the WAL files from start onwards, oldest first. An
// empty start selects every file.
func (m *WALManager) ReplayPaths(start string) ([]string, error) {
	names, err := walSegments.list(m.dir)
	if err != nil {
		return nil, err
	}

	from := 0
	if start != "" {
		startIdx, ok := walSegments.index(start)
		if !ok {
			return nil, fmt.Errorf("invalid WAL name: %s", start)
		}
		from = -1
		for i, name := range names {
			if n, _ := walSegments.index(name); n == startIdx {
				from = i
				break
			}
		}
		if from < 0 {
			return nil, fmt.Errorf("start WAL not found: %s", start)
		}
	}

	paths := make([]string, 0, len(names)-from)
	for _, name := range names[from:] {
		paths = append(paths, filepath.Join(m.dir, name))
	}
	return paths, nil
}

// Prune deletes the WAL files numbered below keep.
func (m *WALManager) Prune(keep string) error {
	keepIdx, ok := walSegments.index(keep)
	if !ok {
		return fmt.Errorf("invalid WAL name: %s", keep)
	}

	names, err := walSegments.list(m.dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if n, _ := walSegments.index(name); n >= keepIdx {
			break
		}
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (m *WALManager) CurrentSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Size()
}

// CurrentName returns the file name of the WAL being appended to, or "" once
// the manager is closed.
func (m *WALManager) CurrentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return ""
	}
	return filepath.Base(m.cur.Path())
}

func (m *WALManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return nil
	}
	err := m.cur.Close()
	m.cur = nil
	return err
}
