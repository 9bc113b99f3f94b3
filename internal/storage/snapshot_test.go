package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/pkg/kv"
)

func TestSnapshot_WriteRead(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "verstash-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	snapPath := filepath.Join(tempDir, "test.vsnap")

	entries := map[string]string{
		"key1":   "value1",
		"key2":   `{"currentVersion":"v1","expiration":null,"values":{"v1":1}}`,
		"key3":   "",
		"binary": string([]byte{0, 1, 2, 3, 255, 254, 253}),
	}

	writer, err := NewSnapshotWriter(snapPath, 42)
	require.NoError(t, err)
	for key, value := range entries {
		require.NoError(t, writer.WriteEntry(key, value))
	}
	require.NoError(t, writer.Close())

	reader, err := OpenSnapshotReader(snapPath)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, uint64(len(entries)), reader.Count())
	assert.Equal(t, uint64(42), reader.LastSeq())

	readEntries := make(map[string]string)
	for {
		key, value, err := reader.ReadEntry()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		readEntries[key] = value
	}

	assert.Equal(t, entries, readEntries)
}

func TestSnapshot_CorruptEntry(t *testing.T) {
	tempDir := t.TempDir()
	snapPath := filepath.Join(tempDir, "test.vsnap")

	writer, err := NewSnapshotWriter(snapPath, 1)
	require.NoError(t, err)
	require.NoError(t, writer.WriteEntry("key1", "value1"))
	require.NoError(t, writer.Close())

	data, err := os.ReadFile(snapPath)
	require.NoError(t, err)
	data[snapHeaderSize+8] ^= 0xFF
	require.NoError(t, os.WriteFile(snapPath, data, 0644))

	reader, err := OpenSnapshotReader(snapPath)
	require.NoError(t, err)
	defer reader.Close()

	_, _, err = reader.ReadEntry()
	assert.Equal(t, ErrSnapshotCRC, err)
}

func TestSnapshot_InvalidMagic(t *testing.T) {
	snapPath := filepath.Join(t.TempDir(), "bad.vsnap")
	require.NoError(t, os.WriteFile(snapPath, make([]byte, snapHeaderSize), 0644))

	_, err := OpenSnapshotReader(snapPath)
	assert.Error(t, err)
}

func TestManifest_WriteRead(t *testing.T) {
	tempDir := t.TempDir()

	manifest := &Manifest{
		Version:   1,
		Snap:      "snap-00000001.vsnap",
		NextWAL:   "wal-00000002.vswal",
		LastSeq:   17,
		CreatedMs: time.Now().UnixMilli(),
	}
	require.NoError(t, WriteManifest(tempDir, manifest))

	readManifest, err := ReadManifest(tempDir)
	require.NoError(t, err)
	require.NotNil(t, readManifest)
	assert.Equal(t, manifest, readManifest)

	_, err = os.Stat(filepath.Join(tempDir, "MANIFEST.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestManifest_NoFile(t *testing.T) {
	manifest, err := ReadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, manifest)
}

func TestSnapshotManager_CreateLoad(t *testing.T) {
	tempDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tempDir

	manager, err := NewSnapshotManager(cfg, zerolog.Nop())
	require.NoError(t, err)

	table := kv.NewMemory()
	require.NoError(t, table.Set("key1", "value1"))
	require.NoError(t, table.Set("key2", "value2"))

	require.NoError(t, manager.CreateSnapshot(table, "wal-00000002.vswal", 9))

	manifest, err := ReadManifest(tempDir)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, "snap-00000001.vsnap", manifest.Snap)
	assert.Equal(t, "wal-00000002.vswal", manifest.NextWAL)

	loaded := kv.NewMemory()
	nextWAL, seq, err := manager.LoadSnapshot(loaded)
	require.NoError(t, err)
	assert.Equal(t, "wal-00000002.vswal", nextWAL)
	assert.Equal(t, uint64(9), seq)

	value, ok, err := loaded.Get("key2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value2", value)
}

func TestSnapshotManager_CleanupKeepsLatest(t *testing.T) {
	tempDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tempDir

	manager, err := NewSnapshotManager(cfg, zerolog.Nop())
	require.NoError(t, err)

	table := kv.NewMemory()
	for i := 0; i < 3; i++ {
		require.NoError(t, manager.CreateSnapshot(table, "wal-00000001.vswal", uint64(i)))
	}
	require.NoError(t, manager.CleanupOldFiles())

	files, err := snapSegments.list(tempDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-00000003.vsnap"}, files)
	assert.Equal(t, "1", manager.GetStats()["snapshots_total"])

	// A new manager continues the numbering.
	again, err := NewSnapshotManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, again.nextIndex)
}
