package versionhash

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]+$`)

func TestGenerateVersionHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}

	assert.Equal(t, GenerateVersionHash(a, false), GenerateVersionHash(b, false))
	assert.Equal(t, GenerateVersionHash(a, true), GenerateVersionHash(b, true))
}

func TestGenerateVersionHash_ShallowIgnoresNested(t *testing.T) {
	x1 := map[string]any{"a": map[string]any{"x": 1}}
	x2 := map[string]any{"a": map[string]any{"x": 2}}

	assert.Equal(t, GenerateVersionHash(x1, false), GenerateVersionHash(x2, false))
	assert.NotEqual(t, GenerateVersionHash(x1, true), GenerateVersionHash(x2, true))
}

func TestGenerateVersionHash_ShallowKeySet(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	moreKeys := map[string]any{"a": 1, "b": 2, "c": 3}
	sameKeys := map[string]any{"a": "changed", "b": []int{1, 2}}

	assert.NotEqual(t, GenerateVersionHash(base, false), GenerateVersionHash(moreKeys, false))
	assert.Equal(t, GenerateVersionHash(base, false), GenerateVersionHash(sameKeys, false))
}

func TestGenerateVersionHash_ArraysAreOrdered(t *testing.T) {
	assert.NotEqual(t,
		GenerateVersionHash([]any{1, 2, 3}, false),
		GenerateVersionHash([]any{3, 2, 1}, false))
	assert.Equal(t,
		GenerateVersionHash([]any{1, 2, 3}, true),
		GenerateVersionHash([]int{1, 2, 3}, true))
}

func TestGenerateVersionHash_TopLevelPrimitives(t *testing.T) {
	empty := GenerateVersionHash([]any{}, false)

	for _, v := range []any{nil, 1, 10.258, "some string", true} {
		assert.Equal(t, empty, GenerateVersionHash(v, false), "value %v", v)
		assert.Equal(t, empty, GenerateVersionHash(v, true), "value %v", v)
	}

	// Channels cannot be encoded and fall back to the empty sequence.
	assert.Equal(t, empty, GenerateVersionHash(make(chan int), true))
}

func TestGenerateVersionHash_StructsHashLikeMaps(t *testing.T) {
	type profile struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	asStruct := GenerateVersionHash(profile{Name: "ann", Age: 3}, true)
	asMap := GenerateVersionHash(map[string]any{"age": 3, "name": "ann"}, true)
	assert.Equal(t, asStruct, asMap)
}

func TestGenerateVersionHash_Format(t *testing.T) {
	h := GenerateVersionHash(map[string]any{"foo": "bar"}, false)
	assert.Len(t, h, 32)
	assert.Regexp(t, hexPattern, h)
	// Stable across calls.
	assert.Equal(t, h, GenerateVersionHash(map[string]any{"foo": "bar"}, false))
}

func TestCanonical(t *testing.T) {
	v := map[string]any{
		"b": map[string]any{"z": 1, "y": []any{"<", 2}},
		"a": 1.5,
	}
	assert.Equal(t, `{"a":null,"b":null}`, string(Canonical(v, false)))
	assert.Equal(t, `{"a":1.5,"b":{"y":["<",2],"z":1}}`, string(Canonical(v, true)))
	assert.Equal(t, `[]`, string(Canonical("text", true)))
	assert.Equal(t, `[{"k":null}]`, string(Canonical([]any{map[string]any{"k": 1}}, false)))
}

func TestDigests(t *testing.T) {
	value := map[string]any{"foo": "bar"}

	tests := []struct {
		name   string
		length int
	}{
		{"md5", 32},
		{"murmur3", 32},
		{"xxhash", 16},
	}
	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DigestByName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())

			h := New(d).Hash(value, true)
			assert.Len(t, h, tt.length)
			assert.Regexp(t, hexPattern, h)
			assert.Equal(t, h, New(d).Hash(value, true))
			seen[tt.name] = h
		})
	}
	assert.NotEqual(t, seen["md5"], seen["murmur3"])

	_, err := DigestByName("sha1024")
	assert.Error(t, err)
}

func TestNew_NilDigest(t *testing.T) {
	h := New(nil)
	assert.Equal(t, MD5, h.Digest())
}
