package vstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tinylib/msgp/msgp"
)

var (
	errInvalidJSON        = errors.New("invalid JSON")
	errNotObject          = errors.New("record is not an object")
	errBadCurrentVersion  = errors.New("currentVersion must be a string")
	errBadExpiration      = errors.New("expiration must be a number or null")
	errBadValues          = errors.New("values must be an object")
	errTrailingRecordData = errors.New("trailing data after record")
)

// Field names of the persisted record.
const (
	fieldCurrentVersion = "currentVersion"
	fieldExpiration     = "expiration"
	fieldValues         = "values"
)

type rawValue struct {
	label string
	raw   json.RawMessage
}

// envelope is a record whose version values are still encoded.
type envelope struct {
	currentVersion string
	expiryMs       int64
	hasExpiry      bool
	values         []rawValue
}

func (e *envelope) isExpired(nowMs int64) bool {
	return e.hasExpiry && nowMs >= e.expiryMs
}

// RecordFormat is the encoding used for whole records in the backend.
type RecordFormat interface {
	Name() string
	encode(env *envelope) (string, error)
	decode(data string) (*envelope, ParseStatus, error)
}

var (
	// FormatJSON is the interoperable text format:
	//   {"currentVersion":"v1","expiration":1700000000000,"values":{"v1":...}}
	FormatJSON RecordFormat = jsonFormat{}
	// FormatMsgpack stores the same fields as a MessagePack map. Version
	// values are embedded as their JSON bytes.
	FormatMsgpack RecordFormat = msgpackFormat{}
)

// FormatByName resolves a record format from its configuration name.
func FormatByName(name string) (RecordFormat, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack":
		return FormatMsgpack, nil
	default:
		return nil, fmt.Errorf("unknown record format: %s", name)
	}
}

type jsonFormat struct{}

func (jsonFormat) Name() string { return "json" }

func (jsonFormat) encode(env *envelope) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"currentVersion":`)
	cv, err := json.Marshal(env.currentVersion)
	if err != nil {
		return "", err
	}
	buf.Write(cv)

	buf.WriteString(`,"expiration":`)
	if env.hasExpiry {
		buf.WriteString(strconv.FormatInt(env.expiryMs, 10))
	} else {
		buf.WriteString("null")
	}

	buf.WriteString(`,"values":{`)
	for i, rv := range env.values {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(rv.label)
		if err != nil {
			return "", err
		}
		buf.Write(label)
		buf.WriteByte(':')
		if err := json.Compact(&buf, rv.raw); err != nil {
			return "", fmt.Errorf("version %q: %w", rv.label, err)
		}
	}
	buf.WriteString("}}")
	return buf.String(), nil
}

func (jsonFormat) decode(data string) (*envelope, ParseStatus, error) {
	if !json.Valid([]byte(data)) {
		return nil, ParseMalformed, errInvalidJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &fields); err != nil || fields == nil {
		return nil, ParseInvalid, errNotObject
	}

	env := &envelope{}

	cv, ok := fields[fieldCurrentVersion]
	if !ok || !isJSONKind(cv, '"') {
		return nil, ParseInvalid, errBadCurrentVersion
	}
	if err := json.Unmarshal(cv, &env.currentVersion); err != nil {
		return nil, ParseInvalid, errBadCurrentVersion
	}

	exp, ok := fields[fieldExpiration]
	if !ok {
		return nil, ParseInvalid, errBadExpiration
	}
	expiryMs, hasExpiry, err := parseExpiration(exp)
	if err != nil {
		return nil, ParseInvalid, err
	}
	env.expiryMs, env.hasExpiry = expiryMs, hasExpiry

	vals, ok := fields[fieldValues]
	if !ok || !isJSONKind(vals, '{') {
		return nil, ParseInvalid, errBadValues
	}
	values, err := orderedValues(vals)
	if err != nil {
		return nil, ParseInvalid, err
	}
	env.values = values

	return env, ParseOK, nil
}

func isJSONKind(raw json.RawMessage, first byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == first
}

// parseExpiration reads an epoch-ms expiry. null means the record never
// expires. Negative values are instants before the epoch. Fractions are
// truncated toward zero.
func parseExpiration(raw json.RawMessage) (int64, bool, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false, errBadExpiration
	}
	if i, err := n.Int64(); err == nil {
		return i, true, nil
	}
	f, err := n.Float64()
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false, errBadExpiration
	}
	return int64(f), true, nil
}

// orderedValues reads the values object preserving key order. A repeated
// label keeps its first position and its last value.
func orderedValues(raw json.RawMessage) ([]rawValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var values []rawValue
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		label, ok := tok.(string)
		if !ok {
			return nil, errBadValues
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		if i, seen := index[label]; seen {
			values[i].raw = val
			continue
		}
		index[label] = len(values)
		values = append(values, rawValue{label: label, raw: val})
	}
	return values, nil
}

type msgpackFormat struct{}

func (msgpackFormat) Name() string { return "msgpack" }

func (msgpackFormat) encode(env *envelope) (string, error) {
	b := make([]byte, 0, 64)
	b = msgp.AppendMapHeader(b, 3)

	b = msgp.AppendString(b, fieldCurrentVersion)
	b = msgp.AppendString(b, env.currentVersion)

	b = msgp.AppendString(b, fieldExpiration)
	if env.hasExpiry {
		b = msgp.AppendInt64(b, env.expiryMs)
	} else {
		b = msgp.AppendNil(b)
	}

	b = msgp.AppendString(b, fieldValues)
	b = msgp.AppendMapHeader(b, uint32(len(env.values)))
	for _, rv := range env.values {
		b = msgp.AppendString(b, rv.label)
		b = msgp.AppendBytes(b, rv.raw)
	}
	return string(b), nil
}

func (msgpackFormat) decode(data string) (*envelope, ParseStatus, error) {
	b := []byte(data)
	if msgp.NextType(b) != msgp.MapType {
		rest, err := msgp.Skip(b)
		if err != nil {
			return nil, ParseMalformed, err
		}
		if len(rest) != 0 {
			return nil, ParseMalformed, errTrailingRecordData
		}
		return nil, ParseInvalid, errNotObject
	}
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, ParseMalformed, err
	}

	env := &envelope{}
	var seenCV, seenExp, seenVals bool
	for i := uint32(0); i < sz; i++ {
		var field string
		field, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, ParseMalformed, err
		}
		switch field {
		case fieldCurrentVersion:
			env.currentVersion, b, err = msgp.ReadStringBytes(b)
			if err != nil {
				return nil, ParseInvalid, errBadCurrentVersion
			}
			seenCV = true
		case fieldExpiration:
			if msgp.IsNil(b) {
				b, err = msgp.ReadNilBytes(b)
			} else {
				env.expiryMs, b, err = msgp.ReadInt64Bytes(b)
				env.hasExpiry = err == nil
			}
			if err != nil {
				return nil, ParseInvalid, errBadExpiration
			}
			seenExp = true
		case fieldValues:
			env.values, b, err = readMsgpackValues(b)
			if err != nil {
				return nil, ParseInvalid, err
			}
			seenVals = true
		default:
			b, err = msgp.Skip(b)
			if err != nil {
				return nil, ParseMalformed, err
			}
		}
	}
	if len(b) != 0 {
		return nil, ParseMalformed, errTrailingRecordData
	}
	switch {
	case !seenCV:
		return nil, ParseInvalid, errBadCurrentVersion
	case !seenExp:
		return nil, ParseInvalid, errBadExpiration
	case !seenVals:
		return nil, ParseInvalid, errBadValues
	}
	return env, ParseOK, nil
}

func readMsgpackValues(b []byte) ([]rawValue, []byte, error) {
	sz, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, errBadValues
	}
	values := make([]rawValue, 0, sz)
	index := make(map[string]int, sz)
	for i := uint32(0); i < sz; i++ {
		var (
			label string
			raw   []byte
		)
		label, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, b, errBadValues
		}
		raw, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil || !json.Valid(raw) {
			return nil, b, errBadValues
		}
		if j, seen := index[label]; seen {
			values[j].raw = raw
			continue
		}
		index[label] = len(values)
		values = append(values, rawValue{label: label, raw: raw})
	}
	return values, b, nil
}
