// Package objectstore implements kv.Backend on an S3-compatible bucket, one
// object per key.
package objectstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alignecoderepos/verstash/pkg/kv"
)

const (
	defaultTimeout = 10 * time.Second
	clearWorkers   = 8
)

// Config selects the endpoint, bucket and key prefix.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
	Timeout   time.Duration
}

// Store is a kv.Backend over an object store. Object names are the
// hex-encoded keys under the prefix, which keeps listing order equal to key
// byte order and allows any key.
type Store struct {
	mc      *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
}

var (
	_ = kv.Backend(&Store{})
	_ = kv.KeyLister(&Store{})
)

// Open connects to the endpoint and creates the bucket if it is missing.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Store{
		mc:      mc,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: timeout,
		logger:  logger,
	}

	ctx, cancel := s.ctx()
	defer cancel()
	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info().Str("bucket", cfg.Bucket).Msg("created bucket")
	}
	return s, nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) objectName(key string) string {
	return s.prefix + hex.EncodeToString([]byte(key))
}

func (s *Store) keyOf(name string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(name, s.prefix))
	if err != nil {
		return "", fmt.Errorf("object %s: %w", name, err)
	}
	return string(raw), nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	obj, err := s.mc.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read object: %w", err)
	}
	return string(data), true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.mc.PutObject(ctx, s.bucket, s.objectName(key), bytes.NewReader([]byte(value)),
		int64(len(value)), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	err := s.mc.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Clear removes every object under the prefix.
func (s *Store) Clear() error {
	names, err := s.listNames()
	if err != nil {
		return err
	}

	ctx, cancel := s.ctx()
	defer cancel()

	bg, ctx := errgroup.WithContext(ctx)
	bg.SetLimit(clearWorkers)
	for _, name := range names {
		name := name
		bg.Go(func() error {
			err := s.mc.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
			if err != nil && !isNoSuchKey(err) {
				return fmt.Errorf("remove object %s: %w", name, err)
			}
			return nil
		})
	}
	if err := bg.Wait(); err != nil {
		return err
	}
	s.logger.Debug().Int("objects", len(names)).Msg("cleared prefix")
	return nil
}

func (s *Store) Len() (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Store) Key(i int) (string, bool, error) {
	if i < 0 {
		return "", false, nil
	}
	keys, err := s.Keys()
	if err != nil {
		return "", false, err
	}
	if i >= len(keys) {
		return "", false, nil
	}
	return keys[i], true, nil
}

// Keys lists every key with a single listing.
func (s *Store) Keys() ([]string, error) {
	names, err := s.listNames()
	if err != nil {
		return nil, err
	}
	return s.keysOf(names), nil
}

// keysOf decodes object names into keys. Objects under the prefix that were
// not written by this backend are skipped.
func (s *Store) keysOf(names []string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key, err := s.keyOf(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("bucket", s.bucket).Msg("skipping foreign object")
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// listNames returns the object names under the prefix in listing order,
// which S3 defines as ascending UTF-8 byte order.
func (s *Store) listNames() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var names []string
	for obj := range s.mc.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}
