package vstore

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/alignecoderepos/verstash/pkg/versionhash"
)

// DefaultVersion is the version label used when a record carries no current
// version and none is requested.
const DefaultVersion = "v1"

// LabelPolicy decides the version label of a Set call that does not name one.
type LabelPolicy uint8

const (
	// LabelHash labels the value with its version hash.
	LabelHash LabelPolicy = iota
	// LabelReuse keeps the record's current version, or the default version
	// for a new record, so unlabeled writes overwrite in place.
	LabelReuse
)

func (p LabelPolicy) String() string {
	switch p {
	case LabelHash:
		return "hash"
	case LabelReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

type options struct {
	defaultVersion string
	defaultTTL     time.Duration
	hasher         *versionhash.Hasher
	deep           bool
	policy         LabelPolicy
	codec          any
	format         RecordFormat
	now            func() time.Time
	diag           DiagnosticFunc
	logger         zerolog.Logger
	initSweep      bool
}

func defaultOptions() options {
	return options{
		defaultVersion: DefaultVersion,
		hasher:         versionhash.New(versionhash.MD5),
		policy:         LabelHash,
		format:         FormatJSON,
		now:            time.Now,
		logger:         log.Logger,
		initSweep:      true,
	}
}

// Option configures a Store.
type Option func(*options)

// WithDefaultVersion sets the label read when a record has no current version.
func WithDefaultVersion(label string) Option {
	return func(o *options) {
		o.defaultVersion = label
	}
}

// WithDefaultTTL sets the lifetime given to newly created records written
// without an explicit TTL. Zero means they never expire.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = ttl
	}
}

// WithHasher sets the hasher used to label unlabeled writes.
func WithHasher(h *versionhash.Hasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithDeepHash makes unlabeled writes hash nested content by default.
func WithDeepHash(deep bool) Option {
	return func(o *options) {
		o.deep = deep
	}
}

// WithLabelPolicy sets how unlabeled writes are labeled.
func WithLabelPolicy(p LabelPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithCodec sets the value codec. Its type parameter must match the store's.
func WithCodec[V any](c Codec[V]) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithRecordFormat sets the encoding of whole records.
func WithRecordFormat(f RecordFormat) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDiagnostics sets the receiver of anomaly reports. By default they are
// logged.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(o *options) {
		o.diag = fn
	}
}

// WithLogger sets the logger used by the store and the default diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithoutInitSweep skips the expired-record sweep normally run by New.
func WithoutInitSweep() Option {
	return func(o *options) {
		o.initSweep = false
	}
}

type setOptions struct {
	ttl     time.Duration
	version string
	labeled bool
	deep    bool
}

// SetOption configures a single Set call.
type SetOption func(*setOptions)

// WithTTL makes the record expire ttl after the write. Non-positive values
// are ignored.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// WithVersion stores the value under label instead of a computed one.
func WithVersion(label string) SetOption {
	return func(o *setOptions) {
		o.version = label
		o.labeled = true
	}
}

// WithDeep overrides the store's hashing depth for this write.
func WithDeep(deep bool) SetOption {
	return func(o *setOptions) {
		o.deep = deep
	}
}
