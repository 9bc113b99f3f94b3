package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignecoderepos/verstash/pkg/kv"
	"github.com/alignecoderepos/verstash/pkg/vstore"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, parseValue(`{"a":1}`))
	assert.Equal(t, float64(42), parseValue("42"))
	assert.Equal(t, "hello", parseValue("hello"))
	assert.Equal(t, "hello", parseValue(`"hello"`))
}

func TestParseSetArgs(t *testing.T) {
	req, err := parseSetArgs([]string{"user", `{"n":1}`, "ex", "5000", "VER", "v2", "DEEP"})
	require.NoError(t, err)
	assert.Equal(t, "user", req.key)
	assert.Equal(t, map[string]any{"n": float64(1)}, req.value)
	assert.Len(t, req.opts, 3)

	s, err := vstore.New[any](kv.NewMemory())
	require.NoError(t, err)
	require.NoError(t, s.Set(req.key, req.value, req.opts...))

	labels, err := s.Versions("user")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, labels)

	ttl, err := s.TTL("user")
	require.NoError(t, err)
	assert.Greater(t, ttl.Milliseconds(), int64(0))
}

func TestParseSetArgs_Errors(t *testing.T) {
	cases := [][]string{
		{"only-key"},
		{"k", "v", "EX"},
		{"k", "v", "EX", "abc"},
		{"k", "v", "EX", "0"},
		{"k", "v", "VER"},
		{"k", "v", "BOGUS"},
	}
	for _, args := range cases {
		_, err := parseSetArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestRenderValue(t *testing.T) {
	v := parseValue(`{"user":{"name":"ada","tags":["x"]}}`)

	out, err := renderValue(v, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":{"name":"ada","tags":["x"]}}`, out)

	out, err = renderValue(v, "user.name")
	require.NoError(t, err)
	assert.Equal(t, `"ada"`, out)

	_, err = renderValue(v, "user.missing")
	assert.Error(t, err)
}
