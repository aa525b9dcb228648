// Package canonical implements the single deterministic byte encoding every
// ledger record is hashed and signed over. Two implementations that cannot
// agree on this encoding cannot agree on anything downstream of it — see
// spec §4.2 and §9.
package canonical

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Marshal produces the canonical byte encoding of v: object keys sorted
// ascending at every nesting level, no insignificant whitespace, UTF-8 with
// ensure-ASCII off, numbers in their shortest unambiguous form, and the
// literals true/false/null.
//
// v is first round-tripped through encoding/json to normalize struct tags,
// then walked as generic Go values so nested map key order is under our
// control at every level — json.Marshal only promises sorted keys for the
// outermost map, not for maps discovered inside []any or other maps.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal input: %w", err)
	}

	var generic any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode intermediate: %w", err)
	}

	var sb strings.Builder
	if err := encodeValue(&sb, generic); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func encodeValue(sb *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
		return nil
	case bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(sb, x)
	case string:
		encodeString(sb, x)
		return nil
	case []any:
		return encodeArray(sb, x)
	case map[string]any:
		return encodeObject(sb, x)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

func encodeNumber(sb *strings.Builder, n json.Number) error {
	// Integers round-trip exactly through their decimal text; only floats
	// need reformatting to the shortest unambiguous representation.
	if i, err := n.Int64(); err == nil {
		sb.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonical: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite number %q", n.String())
	}
	sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

func encodeArray(sb *strings.Builder, arr []any) error {
	sb.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := encodeValue(sb, elem); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func encodeObject(sb *strings.Builder, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		encodeString(sb, k)
		sb.WriteByte(':')
		if err := encodeValue(sb, obj[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

// WithoutFields returns v's canonical JSON object (as a map) with the named
// top-level fields removed — the building block for "canonicalization minus
// {record_hash, ...}" used throughout §4.7.
func WithoutFields(v any, fields ...string) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal input: %w", err)
	}
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("canonical: decode object: %w", err)
	}
	for _, f := range fields {
		delete(m, f)
	}
	return m, nil
}
