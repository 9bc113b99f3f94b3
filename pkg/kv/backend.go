// Package kv defines the synchronous string key-value contract the versioned
// store is layered on, together with an in-memory implementation.
package kv

import "errors"

var (
	ErrKeyTooLarge   = errors.New("key too large")
	ErrValueTooLarge = errors.New("value too large")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrClosed        = errors.New("backend closed")
)

// Backend is a synchronous string key-value store. Every call completes
// before returning; implementations give no transactional guarantees across
// calls.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)
	// Set stores value under key. It may fail when the backend rejects the
	// write, for example with ErrQuotaExceeded.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Clear deletes every key in the backend.
	Clear() error
	// Len returns the number of keys currently stored.
	Len() (int, error)
	// Key returns the i-th key in the backend's enumeration order.
	Key(i int) (string, bool, error)
}

// KeyLister is implemented by backends that can list all keys more cheaply
// than one Key call per position.
type KeyLister interface {
	Keys() ([]string, error)
}

// Keys snapshots every key of b in enumeration order.
func Keys(b Backend) ([]string, error) {
	if l, ok := b.(KeyLister); ok {
		return l.Keys()
	}
	n, err := b.Len()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok, err := b.Key(i)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
