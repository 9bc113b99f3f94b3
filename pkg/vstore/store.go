// Package vstore keeps several named versions of a value under one key of a
// synchronous string key-value backend, tracks the current version and lets
// records expire after a time-to-live.
package vstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alignecoderepos/verstash/internal/syncutils"
	"github.com/alignecoderepos/verstash/pkg/kv"
	"github.com/alignecoderepos/verstash/pkg/versionhash"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrCodecMismatch = errors.New("codec type does not match store value type")
)

// NoTTL is returned by TTL for records that never expire.
const NoTTL time.Duration = -1

// Store is a versioned, expiring view over a kv.Backend.
//
// Every operation reads the whole record, changes it and writes it back; the
// store keeps nothing in memory. Operations on one Store are serialized, but
// nothing coordinates separate Stores or processes sharing a backend: two
// concurrent writers to the same key lose one of the updates, including
// versions the other writer did not touch. Callers that share a backend that
// way must serialize writes themselves.
type Store[V any] struct {
	mu      syncutils.Mutex
	backend kv.Backend
	codec   Codec[V]
	format  RecordFormat
	hasher  *versionhash.Hasher
	deep    bool
	policy  LabelPolicy

	defaultVersion string
	defaultTTL     time.Duration

	now    func() time.Time
	diag   DiagnosticFunc
	logger zerolog.Logger

	stats stats

	janitor *janitor
}

// New creates a Store over backend and removes expired and undecodable
// records already present in it.
func New[V any](backend kv.Backend, opts ...Option) (*Store[V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[V]{
		backend:        backend,
		codec:          JSONCodec[V]{},
		format:         o.format,
		hasher:         o.hasher,
		deep:           o.deep,
		policy:         o.policy,
		defaultVersion: o.defaultVersion,
		defaultTTL:     o.defaultTTL,
		now:            o.now,
		diag:           o.diag,
		logger:         o.logger,
	}
	s.stats.started = time.Now()
	if o.codec != nil {
		c, ok := o.codec.(Codec[V])
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrCodecMismatch, o.codec)
		}
		s.codec = c
	}
	if s.hasher == nil {
		s.hasher = versionhash.New(nil)
	}
	if s.format == nil {
		s.format = FormatJSON
	}
	if s.diag == nil {
		s.diag = LogDiagnostics(s.logger)
	}

	if o.initSweep {
		removed, err := s.CleanupExpired()
		if err != nil {
			return nil, fmt.Errorf("initial sweep failed: %w", err)
		}
		if removed > 0 {
			s.logger.Info().Int("removed", removed).Msg("initial sweep removed dead records")
		}
	}
	return s, nil
}

// Set stores value under key. The version label is the one given with
// WithVersion or, failing that, is chosen by the store's LabelPolicy. The
// written version becomes the current one. A WithTTL option resets the
// record's expiry; without it the expiry is left as it was.
func (s *Store[V]) Set(key string, value V, opts ...SetOption) error {
	o := setOptions{deep: s.deep}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.sets.Add(1)
	now := s.now()

	rec, err := s.loadLive(key, now, true)
	if err != nil {
		return err
	}
	created := rec == nil
	if created {
		rec = newRecord(s.codec)
	}

	label := o.version
	if !o.labeled {
		label = s.resolveLabel(rec, created, value, o.deep)
	}

	rec.Put(label, value)
	rec.CurrentVersion = label

	switch {
	case o.ttl > 0:
		rec.SetExpiry(now.Add(o.ttl))
	case created && s.defaultTTL > 0:
		rec.SetExpiry(now.Add(s.defaultTTL))
	}

	return s.persist(key, rec)
}

func (s *Store[V]) resolveLabel(rec *Record[V], created bool, value V, deep bool) string {
	if s.policy == LabelReuse {
		if !created && rec.Has(rec.CurrentVersion) {
			return rec.CurrentVersion
		}
		return s.defaultVersion
	}
	return s.hasher.Hash(value, deep)
}

// Get returns the value of the current version of key. It reports false when
// the key is absent, expired or does not hold a readable record; expired and
// unreadable records are removed from the backend.
func (s *Store[V]) Get(key string) (V, bool, error) {
	return s.get(key, "", false)
}

// GetVersion returns the value stored under label. A missing label reports
// false without touching the record.
func (s *Store[V]) GetVersion(key, label string) (V, bool, error) {
	return s.get(key, label, true)
}

func (s *Store[V]) get(key, label string, explicit bool) (V, bool, error) {
	var zero V

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.gets.Add(1)

	rec, err := s.loadLive(key, s.now(), false)
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		s.stats.misses.Add(1)
		return zero, false, nil
	}

	if !explicit {
		label = rec.CurrentVersion
		if !rec.Has(label) {
			label = s.defaultVersion
		}
	}
	v, ok, err := rec.value(label)
	if err != nil {
		s.diag(Diagnostic{
			Kind: DiagnosticUndecodable,
			Key:  key,
			Raw:  string(rec.entries[label].raw),
			Err:  fmt.Errorf("version %q: %w", label, err),
		})
		ok = false
	}
	if !ok {
		s.stats.misses.Add(1)
		return zero, false, nil
	}
	s.stats.hits.Add(1)
	return v, true, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store[V]) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.removes.Add(1)
	if err := s.backend.Remove(key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Clear empties the backend. Keys written by anything other than this store
// are removed too.
func (s *Store[V]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// RemoveVersion deletes one version of key. Removing the last version
// deletes the record; otherwise the most recently inserted remaining version
// becomes current. Absent keys and labels are ignored.
func (s *Store[V]) RemoveVersion(key, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.removes.Add(1)

	rec, err := s.loadLive(key, s.now(), false)
	if err != nil || rec == nil {
		return err
	}
	if !rec.Delete(label) {
		return nil
	}

	if rec.Len() == 0 {
		if err := s.backend.Remove(key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		return nil
	}
	rec.CurrentVersion = rec.Last()
	return s.persist(key, rec)
}

// Versions returns the version labels of key in insertion order.
func (s *Store[V]) Versions(key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLive(key, s.now(), false)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Labels(), nil
}

// Inspect returns the full record stored under key.
func (s *Store[V]) Inspect(key string) (*Record[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.loadLive(key, s.now(), false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// TTL returns how long key has left to live, or NoTTL if it never expires.
func (s *Store[V]) TTL(key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, err := s.loadLive(key, now, false)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, ErrNotFound
	}
	if !rec.HasExpiry {
		return NoTTL, nil
	}
	return time.Duration(rec.ExpiryMs-now.UnixMilli()) * time.Millisecond, nil
}

// Expire makes key expire ttl from now. A non-positive ttl removes the key.
func (s *Store[V]) Expire(key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, err := s.loadLive(key, now, false)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if ttl <= 0 {
		if err := s.backend.Remove(key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		s.stats.expired.Add(1)
		return nil
	}
	rec.SetExpiry(now.Add(ttl))
	return s.persist(key, rec)
}

// CleanupExpired scans every key in the backend and removes those holding
// expired records or values that cannot be decoded at all. Values that decode
// but are not records belong to someone else and are kept. It returns the
// number of keys removed.
func (s *Store[V]) CleanupExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.sweeps.Add(1)

	keys, err := kv.Keys(s.backend)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	nowMs := s.now().UnixMilli()
	removed := 0
	for _, key := range keys {
		data, ok, err := s.backend.Get(key)
		if err != nil {
			return removed, fmt.Errorf("get %q: %w", key, err)
		}
		if !ok {
			continue
		}

		env, status, perr := s.format.decode(data)
		switch {
		case status == ParseMalformed:
			s.stats.corrupt.Add(1)
			s.diag(Diagnostic{Kind: DiagnosticMalformed, Key: key, Raw: data, Err: perr})
		case status == ParseOK && env.isExpired(nowMs):
			s.stats.expired.Add(1)
			s.diag(Diagnostic{Kind: DiagnosticExpired, Key: key})
		default:
			continue
		}

		if err := s.backend.Remove(key); err != nil {
			return removed, fmt.Errorf("remove %q: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// Stats returns a snapshot of the store's counters.
func (s *Store[V]) Stats() Stats {
	return s.stats.snapshot()
}

// loadLive reads the record under key. It returns nil when the key is
// absent, and also when the record is unreadable or expired, in which case
// the key is removed unless the caller is about to overwrite it. Only
// backend read errors are returned.
func (s *Store[V]) loadLive(key string, now time.Time, overwrite bool) (*Record[V], error) {
	data, ok, err := s.backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	res := ParseRecord(data, s.format, s.codec)
	switch res.Status {
	case ParseOK:
		if !res.Record.IsExpired(now) {
			return res.Record, nil
		}
		s.stats.expired.Add(1)
		s.diag(Diagnostic{Kind: DiagnosticExpired, Key: key})
	case ParseMalformed:
		s.stats.corrupt.Add(1)
		s.diag(Diagnostic{Kind: DiagnosticMalformed, Key: key, Raw: data, Err: res.Err})
	default:
		s.stats.corrupt.Add(1)
		s.diag(Diagnostic{Kind: DiagnosticInvalid, Key: key, Raw: data, Err: res.Err})
	}

	if overwrite {
		return nil, nil
	}
	if err := s.backend.Remove(key); err != nil {
		s.diag(Diagnostic{Kind: DiagnosticRemoveFailed, Key: key, Err: err})
	}
	return nil, nil
}

func (s *Store[V]) persist(key string, rec *Record[V]) error {
	data, err := MarshalRecord(rec, s.format, s.codec)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.backend.Set(key, data); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}
