package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllRecords(t *testing.T, path string) []*WALRecord {
	t.Helper()
	reader, err := OpenWALReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var records []*WALRecord
	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestWAL_WriteRead(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "verstash-test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	wal, err := NewWAL(tempDir, 1, 1024*1024, "os")
	require.NoError(t, err)

	records := []*WALRecord{
		{Type: RecordTypeSET, Key: "key1", Value: []byte(`{"currentVersion":"v1"}`), Seq: 1},
		{Type: RecordTypeSET, Key: "key2", Value: []byte("value2"), Seq: 2},
		{Type: RecordTypeDEL, Key: "key1", Value: []byte{}, Seq: 3},
		{Type: RecordTypeCLEAR, Key: "", Value: []byte{}, Seq: 4},
	}

	for _, record := range records {
		require.NoError(t, wal.Append(record))
	}
	require.NoError(t, wal.Close())

	readRecords := readAllRecords(t, wal.Path())
	require.Equal(t, len(records), len(readRecords))
	for i, expected := range records {
		actual := readRecords[i]
		assert.Equal(t, expected.Type, actual.Type)
		assert.Equal(t, expected.Key, actual.Key)
		assert.Equal(t, expected.Value, actual.Value)
		assert.Equal(t, expected.Seq, actual.Seq)
	}
}

func TestWAL_BinaryValues(t *testing.T) {
	tempDir := t.TempDir()

	wal, err := NewWAL(tempDir, 1, 1024*1024, "always")
	require.NoError(t, err)

	binaryValue := []byte{0, 1, 2, 3, 255, 254, 253}
	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "binary", Value: binaryValue, Seq: 1}))
	wal.Close()

	records := readAllRecords(t, wal.Path())
	require.Len(t, records, 1)
	assert.Equal(t, binaryValue, records[0].Value)
}

func TestWAL_InvalidMagic(t *testing.T) {
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "invalid.vswal")
	garbage := make([]byte, walHeaderSize)
	copy(garbage, []byte{0x12, 0x34, 0x56, 0x78})
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	reader, err := OpenWALReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadRecord()
	assert.Equal(t, ErrInvalidMagic, err)
}

func TestWAL_CorruptedRecord(t *testing.T) {
	tempDir := t.TempDir()

	wal, err := NewWAL(tempDir, 1, 1024*1024, "os")
	require.NoError(t, err)
	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "key1", Value: []byte("value1"), Seq: 1}))
	wal.Close()

	data, err := os.ReadFile(wal.Path())
	require.NoError(t, err)
	// Flip a byte of the value.
	data[walHeaderSize+5] ^= 0xFF
	require.NoError(t, os.WriteFile(wal.Path(), data, 0644))

	reader, err := OpenWALReader(wal.Path())
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadRecord()
	assert.Equal(t, ErrCorruptedRecord, err)
}

func TestWAL_TornTail(t *testing.T) {
	tempDir := t.TempDir()

	wal, err := NewWAL(tempDir, 1, 1024*1024, "os")
	require.NoError(t, err)
	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "key1", Value: []byte("value1"), Seq: 1}))
	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "key2", Value: []byte("value2"), Seq: 2}))
	firstLen := int64(walHeaderSize + len("key1") + len("value1") + walCRCSize)
	wal.Close()

	stat, err := os.Stat(wal.Path())
	require.NoError(t, err)
	require.NoError(t, os.Truncate(wal.Path(), stat.Size()-4))

	reader, err := OpenWALReader(wal.Path())
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "key1", record.Key)
	assert.Equal(t, firstLen, reader.Offset())

	_, err = reader.ReadRecord()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, firstLen, reader.Offset())
}

func TestWAL_Size(t *testing.T) {
	tempDir := t.TempDir()

	wal, err := NewWAL(tempDir, 1, 1024*1024, "batch")
	require.NoError(t, err)
	defer wal.Close()

	assert.Equal(t, int64(0), wal.Size())

	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "key1", Value: []byte("value1"), Seq: 1}))
	assert.Equal(t, int64(walHeaderSize+4+6+walCRCSize), wal.Size())
}

func TestWAL_IsFull(t *testing.T) {
	tempDir := t.TempDir()

	wal, err := NewWAL(tempDir, 1, 100, "os")
	require.NoError(t, err)
	defer wal.Close()

	assert.False(t, wal.IsFull())

	for i := 0; i < 10; i++ {
		wal.Append(&WALRecord{
			Type:  RecordTypeSET,
			Key:   "key" + string(rune('a'+i)),
			Value: []byte("value"),
			Seq:   uint64(i + 1),
		})
	}

	assert.True(t, wal.IsFull())
}

func TestWAL_UnboundedNeverFull(t *testing.T) {
	wal, err := NewWAL(t.TempDir(), 1, 0, "os")
	require.NoError(t, err)
	defer wal.Close()

	require.NoError(t, wal.Append(&WALRecord{Type: RecordTypeSET, Key: "k", Value: []byte("v"), Seq: 1}))
	assert.False(t, wal.IsFull())
}
