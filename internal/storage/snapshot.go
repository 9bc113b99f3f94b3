package storage

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

const (
	SnapMagic   = 0x56535453 // 'VSTS'
	SnapVersion = 1

	// magic(4) + version(2) + count(8) + last_seq(8)
	snapHeaderSize = 22
)

var ErrSnapshotCRC = errors.New("CRC mismatch in snapshot record")

// Manifest represents the manifest file
type Manifest struct {
	Version   int    `json:"version"`
	Snap      string `json:"snap"`
	NextWAL   string `json:"next_wal"`
	LastSeq   uint64 `json:"last_seq"`
	CreatedMs int64  `json:"created_ms"`
}

// SnapshotWriter writes snapshot files
type SnapshotWriter struct {
	file    *os.File
	writer  *bufio.Writer
	count   uint64
	lastSeq uint64
}

// NewSnapshotWriter creates a new snapshot writer. lastSeq is the WAL
// sequence number the snapshot is consistent with.
func NewSnapshotWriter(path string, lastSeq uint64) (*SnapshotWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	sw := &SnapshotWriter{
		file:    file,
		writer:  bufio.NewWriterSize(file, 64*1024),
		lastSeq: lastSeq,
	}

	// Count is patched in Close.
	if _, err := sw.writer.Write(sw.header()); err != nil {
		file.Close()
		return nil, err
	}

	return sw, nil
}

func (sw *SnapshotWriter) header() []byte {
	header := make([]byte, snapHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], SnapMagic)
	binary.LittleEndian.PutUint16(header[4:6], SnapVersion)
	binary.LittleEndian.PutUint64(header[6:14], sw.count)
	binary.LittleEndian.PutUint64(header[14:22], sw.lastSeq)
	return header
}

// WriteEntry writes a single key/value pair to the snapshot
func (sw *SnapshotWriter) WriteEntry(key, value string) error {
	record := make([]byte, 8+len(key)+len(value)+4)

	binary.LittleEndian.PutUint32(record[0:], uint32(len(key)))
	binary.LittleEndian.PutUint32(record[4:], uint32(len(value)))

	offset := 8
	offset += copy(record[offset:], key)
	offset += copy(record[offset:], value)

	crc := crc32.Checksum(record[:offset], castagnoli)
	binary.LittleEndian.PutUint32(record[offset:], crc)

	if _, err := sw.writer.Write(record); err != nil {
		return err
	}

	sw.count++
	return nil
}

// Close finalizes and closes the snapshot
func (sw *SnapshotWriter) Close() error {
	if err := sw.writer.Flush(); err != nil {
		sw.file.Close()
		return err
	}

	if _, err := sw.file.WriteAt(sw.header(), 0); err != nil {
		sw.file.Close()
		return err
	}

	if err := sw.file.Sync(); err != nil {
		sw.file.Close()
		return err
	}

	return sw.file.Close()
}

// SnapshotReader reads snapshot files
type SnapshotReader struct {
	file    *os.File
	reader  *bufio.Reader
	count   uint64
	read    uint64
	lastSeq uint64
}

// OpenSnapshotReader opens a snapshot file for reading
func OpenSnapshotReader(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	sr := &SnapshotReader{
		file:   file,
		reader: bufio.NewReaderSize(file, 64*1024),
	}

	if err := sr.readHeader(); err != nil {
		file.Close()
		return nil, err
	}

	return sr, nil
}

// readHeader reads and validates the snapshot header
func (sr *SnapshotReader) readHeader() error {
	header := make([]byte, snapHeaderSize)
	if _, err := io.ReadFull(sr.reader, header); err != nil {
		return err
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != SnapMagic {
		return fmt.Errorf("invalid snapshot magic: %x", magic)
	}

	version := binary.LittleEndian.Uint16(header[4:6])
	if version != SnapVersion {
		return fmt.Errorf("unsupported snapshot version: %d", version)
	}

	sr.count = binary.LittleEndian.Uint64(header[6:14])
	sr.lastSeq = binary.LittleEndian.Uint64(header[14:22])
	return nil
}

// Count returns the number of entries in the snapshot.
func (sr *SnapshotReader) Count() uint64 {
	return sr.count
}

// LastSeq returns the WAL sequence number the snapshot was taken at.
func (sr *SnapshotReader) LastSeq() uint64 {
	return sr.lastSeq
}

// ReadEntry reads the next entry from the snapshot
func (sr *SnapshotReader) ReadEntry() (string, string, error) {
	if sr.read >= sr.count {
		return "", "", io.EOF
	}

	lengths := make([]byte, 8)
	if _, err := io.ReadFull(sr.reader, lengths); err != nil {
		return "", "", err
	}

	keyLen := binary.LittleEndian.Uint32(lengths[0:4])
	valLen := binary.LittleEndian.Uint32(lengths[4:8])
	if uint64(keyLen)+uint64(valLen) > maxWALPayload {
		return "", "", ErrSnapshotCRC
	}

	body := make([]byte, int(keyLen)+int(valLen)+4)
	if _, err := io.ReadFull(sr.reader, body); err != nil {
		return "", "", err
	}

	payload := body[:keyLen+valLen]
	expectedCRC := binary.LittleEndian.Uint32(body[keyLen+valLen:])

	crc := crc32.Update(0, castagnoli, lengths)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expectedCRC {
		return "", "", ErrSnapshotCRC
	}

	sr.read++
	return string(payload[:keyLen]), string(payload[keyLen:]), nil
}

// Close closes the snapshot reader
func (sr *SnapshotReader) Close() error {
	return sr.file.Close()
}

// WriteManifest writes a manifest file
func WriteManifest(dataDir string, manifest *Manifest) error {
	// Write to temp file first
	tempPath := filepath.Join(dataDir, "MANIFEST.tmp")
	finalPath := filepath.Join(dataDir, "MANIFEST.json")

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tempPath, finalPath); err != nil {
		return err
	}

	// Sync directory so the rename survives a crash
	dir, err := os.Open(dataDir)
	if err != nil {
		return err
	}
	defer dir.Close()

	return dir.Sync()
}

// ReadManifest reads the manifest file
func ReadManifest(dataDir string) (*Manifest, error) {
	path := filepath.Join(dataDir, "MANIFEST.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No manifest yet
		}
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}

	return &manifest, nil
}
