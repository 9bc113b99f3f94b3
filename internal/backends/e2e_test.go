package backends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/pkg/vstore"
)

func openTestStore(t *testing.T, cfg *config.Config, now func() time.Time) (*vstore.Store[string], func() error) {
	t.Helper()

	backend, closeFn, err := Open(cfg)
	require.NoError(t, err)

	opts, err := StoreOptions(cfg)
	require.NoError(t, err)
	s, err := vstore.New[string](backend, append(opts, vstore.WithClock(now))...)
	require.NoError(t, err)
	return s, closeFn
}

func TestEndToEnd_Persistence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	now := time.Now

	s, closeFn := openTestStore(t, cfg, now)
	require.NoError(t, s.Set("persistent_key1", "persistent_value1"))
	require.NoError(t, s.Set("persistent_key2", "persistent_value2", vstore.WithVersion("v2")))
	require.NoError(t, s.Set("persistent_key3", "persistent_value3"))
	require.NoError(t, s.Remove("persistent_key3"))
	require.NoError(t, closeFn())

	s2, closeFn2 := openTestStore(t, cfg, now)
	defer closeFn2()

	v, ok, err := s2.Get("persistent_key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persistent_value1", v)

	v, ok, err = s2.GetVersion("persistent_key2", "v2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persistent_value2", v)

	_, ok, err = s2.Get("persistent_key3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEndToEnd_ExpiryAcrossRestart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	base := time.UnixMilli(1_700_000_000_000)
	current := base
	now := func() time.Time { return current }

	s, closeFn := openTestStore(t, cfg, now)
	require.NoError(t, s.Set("expiring_key", "expiring_value", vstore.WithTTL(50*time.Millisecond)))
	require.NoError(t, s.Set("forever_key", "forever_value"))
	require.NoError(t, closeFn())

	current = base.Add(100 * time.Millisecond)

	// The sweep run on open drops the expired record.
	s2, closeFn2 := openTestStore(t, cfg, now)
	defer closeFn2()

	assert.Equal(t, uint64(1), s2.Stats().ExpiredTotal)

	_, ok, err := s2.Get("expiring_key")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s2.Get("forever_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "forever_value", v)
}
