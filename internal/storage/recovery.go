package storage

import (
	"io"
	"os"
	"path/filepath"
)

// recover loads the latest snapshot and replays the WAL files written after
// it. A WAL is cut at its first unreadable record so later files can still
// be replayed on top of it.
func (s *Store) recover() error {
	nextWAL, lastSeq, err := s.snapshotManager.LoadSnapshot(s.table)
	if err != nil {
		return err
	}
	s.seq = lastSeq

	walFiles, err := s.walManager.ReplayPaths(nextWAL)
	if err != nil {
		return err
	}

	current := s.walManager.CurrentName()
	for _, walPath := range walFiles {
		if filepath.Base(walPath) == current {
			continue
		}
		if err := s.replayWAL(walPath); err != nil {
			return err
		}
	}

	s.logger.Info().
		Int("wal_files", len(walFiles)).
		Uint64("seq", s.seq).
		Uint64("records", s.stats.ReplayedRecords.Load()).
		Msg("recovery complete")
	return nil
}

// replayWAL replays a single WAL file
func (s *Store) replayWAL(path string) error {
	reader, err := OpenWALReader(path)
	if err != nil {
		return err
	}

	count := 0
	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			offset := reader.Offset()
			reader.Close()
			s.logger.Warn().
				Err(err).
				Str("wal", filepath.Base(path)).
				Int("record", count).
				Int64("offset", offset).
				Msg("truncating WAL at first bad record")
			return os.Truncate(path, offset)
		}

		s.applyRecord(record)
		count++
	}
	reader.Close()

	s.logger.Debug().Str("wal", filepath.Base(path)).Int("records", count).Msg("replayed WAL")
	return nil
}

func (s *Store) applyRecord(record *WALRecord) {
	switch record.Type {
	case RecordTypeSET:
		if err := s.table.Set(record.Key, string(record.Value)); err != nil {
			s.logger.Warn().Err(err).Str("key", record.Key).Msg("dropping WAL write rejected by limits")
		}
	case RecordTypeDEL:
		s.table.Remove(record.Key)
	case RecordTypeCLEAR:
		s.table.Clear()
	}

	if record.Seq > s.seq {
		s.seq = record.Seq
	}
	s.stats.ReplayedRecords.Add(1)
}
