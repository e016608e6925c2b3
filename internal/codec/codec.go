// Package codec implements the typed value codec used to persist arbitrary
// values in a flat string-valued key-value store. Each encoded value starts
// with a single-character type tag followed by the payload; decoding
// dispatches on that tag alone, never on store-side schema.
//
// Tags:
//   - 'a' absent (no value)
//   - 'b' null
//   - '0' boolean ("1" / "0")
//   - '2' number (canonical decimal string)
//   - '1' text (raw)
//   - '3' timestamp (epoch milliseconds)
//   - '4' structured value (JSON)
//
// Structured payloads are plain JSON; on decode, string fields that look
// like ISO-8601 timestamps are reconstructed as time.Time. That is a
// heuristic carried by the format, not a schema.
package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Type tags. The tag is always the first byte of the encoded string.
const (
	TagAbsent    = 'a'
	TagNull      = 'b'
	TagBool      = '0'
	TagText      = '1'
	TagNumber    = '2'
	TagTimestamp = '3'
	TagObject    = '4'
)

// Absent is the decoded representation of a value encoded with TagAbsent.
// It is distinct from nil (TagNull).
type Absent struct{}

// Error is returned for any encode/decode failure. Callers that want to
// treat corruption as "value missing" must do so explicitly; the codec
// itself never silently drops it.
type Error struct {
	Op  string // "encode" or "decode"
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("codec: %s: %s", e.Op, e.Msg) }

func decodeErr(format string, args ...any) error {
	return &Error{Op: "decode", Msg: fmt.Sprintf(format, args...)}
}

// isoTimestampRE matches the prefix of an ISO-8601 / RFC 3339 timestamp.
var isoTimestampRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// Encode converts a value to its tagged string form.
//
// Dispatch is on the dynamic type: booleans, strings, integers, floats,
// json.Number and time.Time map to their dedicated tags; nil maps to the
// null tag; Absent maps to the absent tag; everything else is serialized
// as a structured JSON payload.
func Encode(v any) (string, error) {
	switch x := v.(type) {
	case Absent:
		return string(TagAbsent), nil
	case nil:
		return string(TagNull), nil
	case bool:
		if x {
			return string(TagBool) + "1", nil
		}
		return string(TagBool) + "0", nil
	case string:
		return string(TagText) + x, nil
	case json.Number:
		return string(TagNumber) + x.String(), nil
	case int:
		return string(TagNumber) + strconv.FormatInt(int64(x), 10), nil
	case int32:
		return string(TagNumber) + strconv.FormatInt(int64(x), 10), nil
	case int64:
		return string(TagNumber) + strconv.FormatInt(x, 10), nil
	case float64:
		return string(TagNumber) + strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return string(TagTimestamp) + strconv.FormatInt(x.UnixMilli(), 10), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", &Error{Op: "encode", Msg: err.Error()}
		}
		return string(TagObject) + string(b), nil
	}
}

// Decode converts a tagged string back to a value.
//
// Numbers come back as json.Number (the canonical string form; native
// numeric typing is not preserved). Timestamps come back as time.Time in
// UTC. Structured payloads come back as the generic JSON shapes
// (map[string]any, []any, ...) with ISO-8601-looking strings reconstructed
// as time.Time.
func Decode(s string) (any, error) {
	if s == "" {
		return nil, decodeErr("empty value")
	}
	payload := s[1:]
	switch s[0] {
	case TagAbsent:
		return Absent{}, nil
	case TagNull:
		return nil, nil
	case TagBool:
		return payload == "1", nil
	case TagText:
		return payload, nil
	case TagNumber:
		return json.Number(payload), nil
	case TagTimestamp:
		ms, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, decodeErr("bad timestamp %q", payload)
		}
		return time.UnixMilli(ms).UTC(), nil
	case TagObject:
		var raw any
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, decodeErr("bad structured payload: %v", err)
		}
		return reviveTimestamps(raw), nil
	default:
		return nil, decodeErr("unknown tag %q", s[0])
	}
}

// DecodeInto decodes a structured (TagObject) value into dst, which must be
// a pointer suitable for json.Unmarshal. It fails on any other tag.
func DecodeInto(s string, dst any) error {
	if s == "" {
		return decodeErr("empty value")
	}
	if s[0] != TagObject {
		return decodeErr("tag %q does not carry a structured payload", s[0])
	}
	if err := json.Unmarshal([]byte(s[1:]), dst); err != nil {
		return decodeErr("bad structured payload: %v", err)
	}
	return nil
}

// reviveTimestamps walks a decoded JSON value and converts ISO-8601-looking
// strings to time.Time.
func reviveTimestamps(v any) any {
	switch x := v.(type) {
	case string:
		if isoTimestampRE.MatchString(x) {
			if t, err := time.Parse(time.RFC3339, x); err == nil {
				return t
			}
		}
		return x
	case map[string]any:
		for k, val := range x {
			x[k] = reviveTimestamps(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = reviveTimestamps(val)
		}
		return x
	default:
		return v
	}
}
