package objectstore

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignecoderepos/verstash/pkg/kv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("MINIO_ADDR")
	if addr == "" {
		t.Skip("MINIO_ADDR not set")
	}

	s, err := Open(Config{
		Endpoint:  addr,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    "verstash-test",
		Prefix:    fmt.Sprintf("run-%d/", time.Now().UnixNano()),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Clear() })
	return s
}

func TestObjectName_PreservesOrder(t *testing.T) {
	s := &Store{prefix: "p/"}

	keys := []string{"", "a", "a/b", "ab", "b", "user:1 name", "\xff"}
	prev := ""
	for i, key := range keys {
		name := s.objectName(key)
		if i > 0 {
			assert.Less(t, prev, name, "key %q", key)
		}
		prev = name

		back, err := s.keyOf(name)
		require.NoError(t, err)
		assert.Equal(t, key, back)
	}
}

func TestKeysOf_SkipsForeignObjects(t *testing.T) {
	var logs bytes.Buffer
	s := &Store{prefix: "p/", bucket: "b", logger: zerolog.New(&logs)}

	names := []string{
		s.objectName("alpha"),
		"p/README.txt",
		s.objectName("beta"),
		"p/abc",
	}
	assert.Equal(t, []string{"alpha", "beta"}, s.keysOf(names))
	assert.Contains(t, logs.String(), "skipping foreign object")
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestStore_Set_Get(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("key one", `{"a":1}`))
	value, ok, err := s.Get("key one")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, value)

	_, ok, err = s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove("key one"))
	require.NoError(t, s.Remove("key one"))
	_, ok, err = s.Get("key one")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_EnumerateClear(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(key, key))
	}

	keys, err := kv.Keys(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	key, ok, err := s.Key(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", key)

	require.NoError(t, s.Clear())
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
