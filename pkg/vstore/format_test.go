package vstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

func TestParseRecord_JSON(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		status ParseStatus
	}{
		{"valid", `{"currentVersion":"v1","expiration":null,"values":{"v1":1}}`, ParseOK},
		{"valid with expiry", `{"currentVersion":"v1","expiration":1700000000000,"values":{}}`, ParseOK},
		{"extra fields", `{"currentVersion":"v1","expiration":null,"values":{},"owner":"x"}`, ParseOK},
		{"not json", `not-json`, ParseMalformed},
		{"truncated", `{"currentVersion":"v1"`, ParseMalformed},
		{"empty", ``, ParseMalformed},
		{"json null", `null`, ParseInvalid},
		{"json array", `[1,2]`, ParseInvalid},
		{"json string", `"hello"`, ParseInvalid},
		{"foreign object", `{"theme":"dark"}`, ParseInvalid},
		{"missing expiration", `{"currentVersion":"v1","values":{}}`, ParseInvalid},
		{"negative expiration", `{"currentVersion":"v1","expiration":-5,"values":{}}`, ParseOK},
		{"expiration past int64", `{"currentVersion":"v1","expiration":9.223372036854775808e18,"values":{}}`, ParseInvalid},
		{"string expiration", `{"currentVersion":"v1","expiration":"soon","values":{}}`, ParseInvalid},
		{"numeric version", `{"currentVersion":1,"expiration":null,"values":{}}`, ParseInvalid},
		{"values array", `{"currentVersion":"v1","expiration":null,"values":[1]}`, ParseInvalid},
		{"missing values", `{"currentVersion":"v1","expiration":null}`, ParseInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseRecord[any](tt.data, FormatJSON, JSONCodec[any]{})
			assert.Equal(t, tt.status, res.Status, "err: %v", res.Err)
			if tt.status == ParseOK {
				assert.NotNil(t, res.Record)
				assert.NoError(t, res.Err)
			} else {
				assert.Nil(t, res.Record)
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestParseRecord_FloatExpirationTruncates(t *testing.T) {
	res := ParseRecord[int](`{"currentVersion":"v1","expiration":1500.9,"values":{"v1":1}}`, FormatJSON, JSONCodec[int]{})
	require.Equal(t, ParseOK, res.Status)
	assert.True(t, res.Record.HasExpiry)
	assert.Equal(t, int64(1500), res.Record.ExpiryMs)
}

func TestParseRecord_NegativeExpirationIsPast(t *testing.T) {
	res := ParseRecord[int](`{"currentVersion":"v1","expiration":-5,"values":{"v1":1}}`, FormatJSON, JSONCodec[int]{})
	require.Equal(t, ParseOK, res.Status, "err: %v", res.Err)
	assert.True(t, res.Record.HasExpiry)
	assert.Equal(t, int64(-5), res.Record.ExpiryMs)
	assert.True(t, res.Record.IsExpired(time.UnixMilli(0)))

	res = ParseRecord[int](`{"currentVersion":"v1","expiration":null,"values":{"v1":1}}`, FormatJSON, JSONCodec[int]{})
	require.Equal(t, ParseOK, res.Status)
	assert.False(t, res.Record.HasExpiry)
	assert.False(t, res.Record.IsExpired(time.UnixMilli(1<<62)))
}

func TestParseRecord_PreservesOrder(t *testing.T) {
	data := `{"currentVersion":"a","expiration":null,"values":{"z":1,"a":2,"m":3,"a":4}}`
	res := ParseRecord[int](data, FormatJSON, JSONCodec[int]{})
	require.Equal(t, ParseOK, res.Status)

	assert.Equal(t, []string{"z", "a", "m"}, res.Record.Labels())
	v, ok := res.Record.Value("a")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestParseRecord_UndecodableVersionKept(t *testing.T) {
	data := `{"currentVersion":"v1","expiration":null,"values":{"v1":"text","v2":7}}`
	res := ParseRecord[int](data, FormatJSON, JSONCodec[int]{})
	require.Equal(t, ParseOK, res.Status, "err: %v", res.Err)

	rec := res.Record
	assert.True(t, rec.Has("v1"))
	_, ok := rec.Value("v1")
	assert.False(t, ok)
	v, ok := rec.Value("v2")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	rec.Put("v3", 9)
	out, err := MarshalRecord(rec, FormatJSON, JSONCodec[int]{})
	require.NoError(t, err)
	assert.Equal(t, `{"currentVersion":"v1","expiration":null,"values":{"v1":"text","v2":7,"v3":9}}`, out)
}

func TestMarshalRecord_JSON(t *testing.T) {
	rec := NewRecord[map[string]any]()
	rec.Put("v2", map[string]any{"b": 1})
	rec.Put("v1", map[string]any{"a": "x"})
	rec.CurrentVersion = "v1"

	data, err := MarshalRecord(rec, FormatJSON, JSONCodec[map[string]any]{})
	require.NoError(t, err)
	assert.Equal(t, `{"currentVersion":"v1","expiration":null,"values":{"v2":{"b":1},"v1":{"a":"x"}}}`, data)

	rec.SetExpiry(time.UnixMilli(42))
	data, err = MarshalRecord(rec, FormatJSON, JSONCodec[map[string]any]{})
	require.NoError(t, err)
	assert.Contains(t, data, `"expiration":42`)
}

func TestRecordFormat_RoundTrip(t *testing.T) {
	for _, format := range []RecordFormat{FormatJSON, FormatMsgpack} {
		t.Run(format.Name(), func(t *testing.T) {
			rec := NewRecord[[]string]()
			rec.Put("b", []string{"x"})
			rec.Put("a", nil)
			rec.Put("c", []string{"y", "z"})
			rec.CurrentVersion = "a"
			rec.SetExpiry(time.UnixMilli(1_700_000_000_123))

			data, err := MarshalRecord(rec, format, JSONCodec[[]string]{})
			require.NoError(t, err)

			res := ParseRecord(data, format, JSONCodec[[]string]{})
			require.Equal(t, ParseOK, res.Status, "err: %v", res.Err)
			got := res.Record
			assert.Equal(t, "a", got.CurrentVersion)
			assert.True(t, got.HasExpiry)
			assert.Equal(t, rec.ExpiryMs, got.ExpiryMs)
			assert.Equal(t, []string{"b", "a", "c"}, got.Labels())
			v, _ := got.Value("c")
			assert.Equal(t, []string{"y", "z"}, v)
		})
	}
}

func TestMsgpackFormat_Decode(t *testing.T) {
	good, err := FormatMsgpack.encode(&envelope{currentVersion: "v1"})
	require.NoError(t, err)

	scalar := string(msgp.AppendString(nil, "just a string"))
	missing := string(msgp.AppendString(msgp.AppendMapHeader(nil, 1), "other")) +
		string(msgp.AppendInt(nil, 1))

	tests := []struct {
		name   string
		data   string
		status ParseStatus
	}{
		{"valid", good, ParseOK},
		{"trailing bytes", good + "x", ParseMalformed},
		{"truncated", good[:len(good)-2], ParseMalformed},
		{"text", "not-json", ParseMalformed},
		{"scalar", scalar, ParseInvalid},
		{"missing fields", missing, ParseInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, status, err := FormatMsgpack.decode(tt.data)
			assert.Equal(t, tt.status, status, "err: %v", err)
		})
	}
}

func TestFormatByName(t *testing.T) {
	f, err := FormatByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", f.Name())

	f, err = FormatByName("MsgPack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", f.Name())

	_, err = FormatByName("xml")
	assert.Error(t, err)
}

func TestRecord_Delete(t *testing.T) {
	rec := NewRecord[int]()
	rec.Put("a", 1)
	rec.Put("b", 2)
	rec.Put("c", 3)

	assert.True(t, rec.Delete("b"))
	assert.False(t, rec.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, rec.Labels())
	assert.Equal(t, "c", rec.Last())
	assert.Equal(t, 2, rec.Len())
}
