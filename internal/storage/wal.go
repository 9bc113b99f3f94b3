package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alignecoderepos/verstash/internal/syncutils"
)

const (
	WALMagic   = 0x56535457 // 'VSTW'
	WALVersion = 1

	// Record types
	RecordTypeSET   = 0
	RecordTypeDEL   = 1
	RecordTypeCLEAR = 2

	// magic(4) + version(2) + type(1) + key_len(4) + val_len(4) + seq(8)
	walHeaderSize = 23
	walCRCSize    = 4

	maxWALPayload = 1 << 30
)

var (
	ErrCorruptedRecord = errors.New("corrupted WAL record")
	ErrInvalidMagic    = errors.New("invalid WAL magic")
	ErrInvalidVersion  = errors.New("invalid WAL version")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// WALRecord represents a single WAL record
type WALRecord struct {
	Type  uint8
	Key   string
	Value []byte
	Seq   uint64
}

// WAL represents the write-ahead log
type WAL struct {
	mu      syncutils.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64

	// Sync policy
	syncPolicy string
	lastSync   time.Time
	syncBytes  int64
}

// NewWAL opens (or creates) the WAL file with the given index for appending.
func NewWAL(dir string, index int, maxSize int64, syncPolicy string) (*WAL, error) {
	path := filepath.Join(dir, walSegments.name(index))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &WAL{
		file:       file,
		path:       path,
		size:       stat.Size(),
		maxSize:    maxSize,
		syncPolicy: syncPolicy,
		lastSync:   time.Now(),
	}, nil
}

// Append appends a record to the WAL
func (w *WAL) Append(record *WALRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := encodeWALRecord(record)

	n, err := w.file.Write(data)
	if err != nil {
		return err
	}

	w.size += int64(n)
	w.syncBytes += int64(n)

	return w.maybeSync()
}

func encodeWALRecord(record *WALRecord) []byte {
	keyBytes := []byte(record.Key)

	buf := make([]byte, walHeaderSize+len(keyBytes)+len(record.Value)+walCRCSize)

	binary.LittleEndian.PutUint32(buf[0:], WALMagic)
	binary.LittleEndian.PutUint16(buf[4:], WALVersion)
	buf[6] = record.Type
	binary.LittleEndian.PutUint32(buf[7:], uint32(len(keyBytes)))
	binary.LittleEndian.PutUint32(buf[11:], uint32(len(record.Value)))
	binary.LittleEndian.PutUint64(buf[15:], record.Seq)

	offset := walHeaderSize
	offset += copy(buf[offset:], keyBytes)
	offset += copy(buf[offset:], record.Value)

	// CRC32C covers everything after magic and version.
	crc := crc32.Checksum(buf[6:offset], castagnoli)
	binary.LittleEndian.PutUint32(buf[offset:], crc)

	return buf
}

// maybeSync syncs the WAL based on the sync policy
func (w *WAL) maybeSync() error {
	switch w.syncPolicy {
	case "always":
		return w.file.Sync()

	case "batch":
		// Sync if enough time has passed or enough bytes written
		if time.Since(w.lastSync) > 100*time.Millisecond || w.syncBytes > 1024*1024 {
			err := w.file.Sync()
			w.lastSync = time.Now()
			w.syncBytes = 0
			return err
		}

	case "os":
		// Let OS handle it
	}

	return nil
}

// Size returns the current size of the WAL
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// IsFull checks if the WAL has reached its max size. A non-positive max size
// never fills.
func (w *WAL) IsFull() bool {
	return w.maxSize > 0 && w.Size() >= w.maxSize
}

// Close closes the WAL file
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.syncPolicy != "os" {
		w.file.Sync()
	}

	return w.file.Close()
}

// Path returns the WAL file path
func (w *WAL) Path() string {
	return w.path
}

// WALReader reads WAL records
type WALReader struct {
	file   *os.File
	reader *bufio.Reader
	offset int64
}

// OpenWALReader opens a WAL file for reading
func OpenWALReader(path string) (*WALReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &WALReader{
		file:   file,
		reader: bufio.NewReaderSize(file, 64*1024),
	}, nil
}

// ReadRecord reads the next record from the WAL. It returns io.EOF at a clean
// end of file and io.ErrUnexpectedEOF for a torn final record.
func (r *WALReader) ReadRecord() (*WALRecord, error) {
	header := make([]byte, walHeaderSize)
	if _, err := io.ReadFull(r.reader, header); err != nil {
		return nil, err
	}

	if binary.LittleEndian.Uint32(header[0:4]) != WALMagic {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(header[4:6]) != WALVersion {
		return nil, ErrInvalidVersion
	}

	keyLen := binary.LittleEndian.Uint32(header[7:11])
	valLen := binary.LittleEndian.Uint32(header[11:15])
	if uint64(keyLen)+uint64(valLen) > maxWALPayload {
		return nil, ErrCorruptedRecord
	}

	body := make([]byte, int(keyLen)+int(valLen)+walCRCSize)
	if _, err := io.ReadFull(r.reader, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := body[:keyLen+valLen]
	expectedCRC := binary.LittleEndian.Uint32(body[keyLen+valLen:])

	crc := crc32.Update(0, castagnoli, header[6:])
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expectedCRC {
		return nil, ErrCorruptedRecord
	}

	r.offset += int64(len(header) + len(body))

	return &WALRecord{
		Type:  header[6],
		Key:   string(payload[:keyLen]),
		Value: payload[keyLen:],
		Seq:   binary.LittleEndian.Uint64(header[15:23]),
	}, nil
}

// Offset returns the file offset just past the last record read successfully.
func (r *WALReader) Offset() int64 {
	return r.offset
}

// Close closes the WAL reader
func (r *WALReader) Close() error {
	return r.file.Close()
}
