// Package backends builds the configured kv.Backend and the store options
// that go with it.
package backends

import (
	"fmt"
	"strings"

	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/logging"
	"github.com/alignecoderepos/verstash/internal/objectstore"
	"github.com/alignecoderepos/verstash/internal/redisstore"
	"github.com/alignecoderepos/verstash/internal/storage"
	"github.com/alignecoderepos/verstash/pkg/kv"
	"github.com/alignecoderepos/verstash/pkg/versionhash"
	"github.com/alignecoderepos/verstash/pkg/vstore"
)

// Open returns the backend selected by cfg.Backend and a function releasing
// it.
func Open(cfg *config.Config) (kv.Backend, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return kv.NewMemoryWithLimits(kv.Limits{
			MaxKeyBytes:   cfg.MaxKeyBytes,
			MaxValueBytes: cfg.MaxValueBytes,
			QuotaBytes:    cfg.QuotaBytes,
		}), noop, nil

	case "file":
		s, err := storage.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open file backend: %w", err)
		}
		return s, s.Close, nil

	case "redis":
		s, err := redisstore.Open(redisstore.Config{
			Addr:      cfg.RedisAddr,
			DB:        cfg.RedisDB,
			Namespace: cfg.RedisNamespace,
			Timeout:   cfg.RedisTimeout(),
		}, logging.Component("redis"))
		if err != nil {
			return nil, nil, fmt.Errorf("open redis backend: %w", err)
		}
		return s, s.Close, nil

	case "object":
		s, err := objectstore.Open(objectstore.Config{
			Endpoint:  cfg.ObjectEndpoint,
			AccessKey: cfg.ObjectAccessKey,
			SecretKey: cfg.ObjectSecretKey,
			Bucket:    cfg.ObjectBucket,
			Prefix:    cfg.ObjectPrefix,
			Secure:    cfg.ObjectSecure,
		}, logging.Component("objectstore"))
		if err != nil {
			return nil, nil, fmt.Errorf("open object backend: %w", err)
		}
		return s, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// StoreOptions translates the store settings of cfg into vstore options.
func StoreOptions(cfg *config.Config) ([]vstore.Option, error) {
	digest, err := versionhash.DigestByName(strings.ToLower(cfg.Digest))
	if err != nil {
		return nil, err
	}
	format, err := vstore.FormatByName(cfg.RecordFormat)
	if err != nil {
		return nil, err
	}

	policy := vstore.LabelHash
	switch strings.ToLower(cfg.LabelPolicy) {
	case "", "hash":
	case "reuse":
		policy = vstore.LabelReuse
	default:
		return nil, fmt.Errorf("unknown label policy: %s", cfg.LabelPolicy)
	}

	return []vstore.Option{
		vstore.WithDefaultVersion(cfg.DefaultVersion),
		vstore.WithDefaultTTL(cfg.DefaultTTL()),
		vstore.WithHasher(versionhash.New(digest)),
		vstore.WithDeepHash(cfg.DeepHash),
		vstore.WithLabelPolicy(policy),
		vstore.WithRecordFormat(format),
		vstore.WithLogger(logging.Component("vstore")),
	}, nil
}
