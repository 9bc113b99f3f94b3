package versionhash

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// Digest turns a canonical encoding into a fixed-length lowercase hex string.
type Digest interface {
	Sum(data []byte) string
	Name() string
}

type md5Digest struct{}

func (md5Digest) Sum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (md5Digest) Name() string { return "md5" }

type murmur3Digest struct{}

func (murmur3Digest) Sum(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

func (murmur3Digest) Name() string { return "murmur3" }

type xxhashDigest struct{}

func (xxhashDigest) Sum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func (xxhashDigest) Name() string { return "xxhash" }

var (
	// MD5 is the 128-bit reference digest.
	MD5 Digest = md5Digest{}
	// Murmur3 is a 128-bit non-cryptographic digest.
	Murmur3 Digest = murmur3Digest{}
	// XXHash is a 64-bit non-cryptographic digest.
	XXHash Digest = xxhashDigest{}
)

// DigestByName resolves a digest from its configuration name.
func DigestByName(name string) (Digest, error) {
	switch strings.ToLower(name) {
	case "", "md5":
		return MD5, nil
	case "murmur3":
		return Murmur3, nil
	case "xxhash":
		return XXHash, nil
	default:
		return nil, fmt.Errorf("unknown digest: %s", name)
	}
}
