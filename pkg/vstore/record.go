package vstore

import (
	"encoding/json"
	"time"

	"golang.org/x/exp/slices"
)

// entry holds one version. Versions read from the backend keep their encoded
// form so that rewriting the record carries them through unchanged, even
// when they do not decode into V.
type entry[V any] struct {
	raw     json.RawMessage
	val     V
	decoded bool
}

// Record is the structure persisted under one storage key: the current
// version pointer, an optional absolute expiry and the version values in
// insertion order.
type Record[V any] struct {
	CurrentVersion string
	// ExpiryMs is the expiry in Unix milliseconds; it is meaningful only
	// when HasExpiry is set.
	ExpiryMs  int64
	HasExpiry bool

	labels  []string
	entries map[string]*entry[V]
	codec   Codec[V]
}

// NewRecord creates an empty record with no expiry. Values added later with
// Put are encoded with JSONCodec.
func NewRecord[V any]() *Record[V] {
	return newRecord[V](JSONCodec[V]{})
}

func newRecord[V any](codec Codec[V]) *Record[V] {
	return &Record[V]{
		entries: make(map[string]*entry[V]),
		codec:   codec,
	}
}

// Put stores value under label. A new label is appended; an existing one
// keeps its position.
func (r *Record[V]) Put(label string, value V) {
	if _, exists := r.entries[label]; !exists {
		r.labels = append(r.labels, label)
	}
	r.entries[label] = &entry[V]{val: value, decoded: true}
}

func (r *Record[V]) putRaw(label string, raw json.RawMessage) {
	if _, exists := r.entries[label]; !exists {
		r.labels = append(r.labels, label)
	}
	r.entries[label] = &entry[V]{raw: raw}
}

// Has reports whether label is stored, whether or not its value decodes.
func (r *Record[V]) Has(label string) bool {
	_, ok := r.entries[label]
	return ok
}

// Value returns the value stored under label. A label whose stored value
// does not decode into V reports false.
func (r *Record[V]) Value(label string) (V, bool) {
	v, ok, err := r.value(label)
	return v, ok && err == nil
}

// value decodes label on first access. ok is false for a missing label; err
// is set when the stored value does not decode.
func (r *Record[V]) value(label string) (v V, ok bool, err error) {
	e, ok := r.entries[label]
	if !ok {
		return v, false, nil
	}
	if !e.decoded {
		if e.val, err = r.codec.Decode(e.raw); err != nil {
			return v, true, err
		}
		e.decoded = true
	}
	return e.val, true, nil
}

// Delete removes label and reports whether it was present.
func (r *Record[V]) Delete(label string) bool {
	i := slices.Index(r.labels, label)
	if i < 0 {
		return false
	}
	r.labels = slices.Delete(r.labels, i, i+1)
	delete(r.entries, label)
	return true
}

// Labels returns the version labels in insertion order.
func (r *Record[V]) Labels() []string {
	return slices.Clone(r.labels)
}

// Len returns the number of stored versions.
func (r *Record[V]) Len() int {
	return len(r.labels)
}

// Last returns the most recently inserted label that is still present.
func (r *Record[V]) Last() string {
	if len(r.labels) == 0 {
		return ""
	}
	return r.labels[len(r.labels)-1]
}

// SetExpiry makes the record expire at t.
func (r *Record[V]) SetExpiry(t time.Time) {
	r.ExpiryMs = t.UnixMilli()
	r.HasExpiry = true
}

// IsExpired reports whether the record's expiry is at or before now.
func (r *Record[V]) IsExpired(now time.Time) bool {
	return r.HasExpiry && now.UnixMilli() >= r.ExpiryMs
}

// ExpiresAt returns the expiry instant and whether the record expires.
func (r *Record[V]) ExpiresAt() (time.Time, bool) {
	if !r.HasExpiry {
		return time.Time{}, false
	}
	return time.UnixMilli(r.ExpiryMs), true
}
