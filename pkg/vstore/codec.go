package vstore

import (
	"encoding/json"
	"fmt"
)

// Codec converts stored values to and from their JSON representation inside
// a record.
type Codec[V any] interface {
	Encode(v V) (json.RawMessage, error)
	Decode(raw json.RawMessage) (V, error)
}

// JSONCodec encodes values with encoding/json.
type JSONCodec[V any] struct{}

var _ = Codec[any](JSONCodec[any]{})

func (JSONCodec[V]) Encode(v V) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (JSONCodec[V]) Decode(raw json.RawMessage) (V, error) {
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// ParseStatus tags the outcome of parsing a stored record.
type ParseStatus uint8

const (
	// ParseOK means the value is a well-formed record.
	ParseOK ParseStatus = iota
	// ParseMalformed means the value could not be decoded at all.
	ParseMalformed
	// ParseInvalid means the value decoded but is not shaped like a record.
	ParseInvalid
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseMalformed:
		return "malformed"
	case ParseInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("ParseStatus(%d)", uint8(s))
	}
}

// ParseResult is the tagged result of ParseRecord. Record is set only when
// Status is ParseOK; Err describes the failure otherwise.
type ParseResult[V any] struct {
	Status ParseStatus
	Record *Record[V]
	Err    error
}

// ParseRecord decodes a stored value in the given format. Version values
// are decoded with codec only when read, so a value that does not fit V makes
// that version unreadable without invalidating the record.
func ParseRecord[V any](data string, format RecordFormat, codec Codec[V]) ParseResult[V] {
	env, status, err := format.decode(data)
	if status != ParseOK {
		return ParseResult[V]{Status: status, Err: err}
	}

	rec := newRecord(codec)
	rec.CurrentVersion = env.currentVersion
	rec.ExpiryMs = env.expiryMs
	rec.HasExpiry = env.hasExpiry
	for _, rv := range env.values {
		rec.putRaw(rv.label, rv.raw)
	}
	return ParseResult[V]{Status: ParseOK, Record: rec}
}

// MarshalRecord encodes rec in the given format. Versions that were read
// from the backend and not replaced keep their stored encoding.
func MarshalRecord[V any](rec *Record[V], format RecordFormat, codec Codec[V]) (string, error) {
	env := &envelope{
		currentVersion: rec.CurrentVersion,
		expiryMs:       rec.ExpiryMs,
		hasExpiry:      rec.HasExpiry,
		values:         make([]rawValue, 0, len(rec.labels)),
	}
	for _, label := range rec.labels {
		e := rec.entries[label]
		raw := e.raw
		if raw == nil {
			var err error
			if raw, err = codec.Encode(e.val); err != nil {
				return "", fmt.Errorf("encode version %q: %w", label, err)
			}
		}
		env.values = append(env.values, rawValue{label: label, raw: raw})
	}
	return format.encode(env)
}
