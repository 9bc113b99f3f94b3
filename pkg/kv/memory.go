package kv

import (
	"github.com/google/btree"

	"github.com/alignecoderepos/verstash/internal/syncutils"
)

type kvPair struct {
	key string
	val string
}

func lessPair(a, b kvPair) bool {
	return a.key < b.key
}

// Limits bounds what a Memory backend accepts. Zero disables a limit.
type Limits struct {
	MaxKeyBytes   int
	MaxValueBytes int
	// QuotaBytes caps the sum of key and value lengths across all entries.
	QuotaBytes int64
}

// Memory is an in-process Backend ordered by key. It is safe for concurrent
// use.
type Memory struct {
	mux    syncutils.Mutex
	store  *btree.BTreeG[kvPair]
	limits Limits
	used   int64
}

var (
	_ = Backend(&Memory{})
	_ = KeyLister(&Memory{})
)

// NewMemory creates an empty Memory backend with no limits.
func NewMemory() *Memory {
	return NewMemoryWithLimits(Limits{})
}

// NewMemoryWithLimits creates an empty Memory backend enforcing limits.
func NewMemoryWithLimits(limits Limits) *Memory {
	return &Memory{
		store:  btree.NewG[kvPair](2, lessPair),
		limits: limits,
	}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	kv, ok := m.store.Get(kvPair{key: key})
	return kv.val, ok, nil
}

func (m *Memory) Set(key, value string) error {
	if m.limits.MaxKeyBytes > 0 && len(key) > m.limits.MaxKeyBytes {
		return ErrKeyTooLarge
	}
	if m.limits.MaxValueBytes > 0 && len(value) > m.limits.MaxValueBytes {
		return ErrValueTooLarge
	}

	m.mux.Lock()
	defer m.mux.Unlock()

	used := m.used + int64(len(key)+len(value))
	if old, ok := m.store.Get(kvPair{key: key}); ok {
		used -= int64(len(old.key) + len(old.val))
	}
	if m.limits.QuotaBytes > 0 && used > m.limits.QuotaBytes {
		return ErrQuotaExceeded
	}
	m.store.ReplaceOrInsert(kvPair{key: key, val: value})
	m.used = used
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if old, ok := m.store.Delete(kvPair{key: key}); ok {
		m.used -= int64(len(old.key) + len(old.val))
	}
	return nil
}

func (m *Memory) Clear() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.store.Clear(false)
	m.used = 0
	return nil
}

func (m *Memory) Len() (int, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.store.Len(), nil
}

func (m *Memory) Key(i int) (string, bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if i < 0 || i >= m.store.Len() {
		return "", false, nil
	}
	var (
		key string
		idx int
	)
	m.store.Ascend(func(kv kvPair) bool {
		if idx == i {
			key = kv.key
			return false
		}
		idx++
		return true
	})
	return key, true, nil
}

// Keys returns every key in order.
func (m *Memory) Keys() ([]string, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	keys := make([]string, 0, m.store.Len())
	m.store.Ascend(func(kv kvPair) bool {
		keys = append(keys, kv.key)
		return true
	})
	return keys, nil
}

// Range calls fn for every entry in key order until fn returns false.
func (m *Memory) Range(fn func(key, value string) bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.store.Ascend(func(kv kvPair) bool {
		return fn(kv.key, kv.val)
	})
}

// UsedBytes returns the sum of key and value lengths currently stored.
func (m *Memory) UsedBytes() int64 {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.used
}
