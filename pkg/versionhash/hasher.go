// Package versionhash derives stable version labels from JSON-serializable
// values.
//
// A value is first reduced to a canonical form: object keys are sorted and,
// in shallow mode, object values are blanked so that only the key set matters.
// Arrays keep their order. A top-level value that is not an object or an
// array has the empty sequence as its canonical form. The canonical form is
// encoded as compact JSON and passed through a Digest.
package versionhash

import (
	"bytes"
	"encoding/json"

	"github.com/Jeffail/gabs/v2"
)

// Hasher computes version hashes with a fixed Digest.
type Hasher struct {
	digest Digest
}

// New creates a Hasher using d. A nil digest selects MD5.
func New(d Digest) *Hasher {
	if d == nil {
		d = MD5
	}
	return &Hasher{digest: d}
}

var defaultHasher = New(MD5)

// GenerateVersionHash hashes value with the default MD5 hasher.
func GenerateVersionHash(value any, deep bool) string {
	return defaultHasher.Hash(value, deep)
}

// Digest returns the digest the hasher uses.
func (h *Hasher) Digest() Digest {
	return h.digest
}

// Hash returns the version hash of value. Values that cannot be encoded as
// JSON hash like a top-level primitive.
func (h *Hasher) Hash(value any, deep bool) string {
	return h.digest.Sum(Canonical(value, deep))
}

// Canonical returns the canonical JSON encoding of value that Hash digests.
func Canonical(value any, deep bool) []byte {
	var form any = []any{}

	if c, err := parse(value); err == nil {
		switch c.Data().(type) {
		case []any, map[string]any:
			form = normalize(c, deep)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(form); err != nil {
		return []byte("[]")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

func parse(value any) (*gabs.Container, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return gabs.ParseJSONDecoder(dec)
}

// normalize rebuilds the tree held by c. encoding/json writes map keys in
// sorted order, which gives the key ordering of the canonical form.
func normalize(c *gabs.Container, deep bool) any {
	switch c.Data().(type) {
	case []any:
		children := c.Children()
		out := make([]any, len(children))
		for i, child := range children {
			out[i] = normalize(child, deep)
		}
		return out
	case map[string]any:
		children := c.ChildrenMap()
		out := make(map[string]any, len(children))
		for key, child := range children {
			if deep {
				out[key] = normalize(child, deep)
			} else {
				out[key] = nil
			}
		}
		return out
	default:
		return c.Data()
	}
}
