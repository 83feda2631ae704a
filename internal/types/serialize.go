package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Serialize encodes value as the little-endian byte representation of
// type t. It never writes a null flag; that belongs to the record
// layer, which precedes every field with its own 1-byte flag per §3.
func Serialize(value any, t DataType) ([]byte, error) {
	switch t {
	case Int8:
		v, ok := asInt64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		return []byte{byte(int8(v))}, nil
	case Int16:
		v, ok := asInt64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		return b, nil
	case Int32:
		v, ok := asInt64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		return b, nil
	case Int64:
		v, ok := asInt64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		return b, nil
	case Float32:
		v, ok := asFloat64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b, nil
	case Float64:
		v, ok := asFloat64(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return b, nil
	case Boolean:
		v, ok := value.(bool)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case Char, VarChar, Decimal:
		s, ok := asString(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		return prefixed16([]byte(s)), nil
	case Binary, JSON, XML:
		b, ok := asBytes(value)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		return prefixed32(b), nil
	case Date:
		v, ok := asInt64(value) // days since epoch
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		return b, nil
	case Time:
		v, ok := asInt64(value) // seconds since midnight
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		return b, nil
	case DateTime, Timestamp:
		v, ok := asInt64(value) // microseconds since epoch
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		return b, nil
	case UUID:
		var id uuid.UUID
		switch v := value.(type) {
		case uuid.UUID:
			id = v
		case string:
			parsed, err := uuid.Parse(v)
			if err != nil {
				return nil, ErrTypeMismatch{t, value}
			}
			id = parsed
		case [16]byte:
			id = v
		default:
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 16)
		copy(b, id[:])
		return b, nil
	case Point:
		p, ok := value.(Coordinate)
		if !ok {
			return nil, ErrTypeMismatch{t, value}
		}
		b := make([]byte, 16)
		binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(p.X))
		binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(p.Y))
		return b, nil
	default:
		return nil, fmt.Errorf("types: unsupported type %s", t)
	}
}

// Coordinate is the only geometry shape the core needs to round-trip:
// a WKB-style (x, y) point.
type Coordinate struct {
	X, Y float64
}

func prefixed16(b []byte) []byte {
	out := make([]byte, 2+len(b))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(b)))
	copy(out[2:], b)
	return out
}

func prefixed32(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b)))
	copy(out[4:], b)
	return out
}

// Deserialize decodes the value of type t starting at the front of b,
// returning the value and the number of bytes consumed.
func Deserialize(b []byte, t DataType) (value any, consumed int, err error) {
	switch t {
	case Int8:
		if len(b) < 1 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(int8(b[0])), 1, nil
	case Int16:
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(int16(binary.LittleEndian.Uint16(b))), 2, nil
	case Int32:
		if len(b) < 4 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(int32(binary.LittleEndian.Uint32(b))), 4, nil
	case Int64:
		if len(b) < 8 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(binary.LittleEndian.Uint64(b)), 8, nil
	case Float32:
		if len(b) < 4 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 4, nil
	case Float64:
		if len(b) < 8 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), 8, nil
	case Boolean:
		if len(b) < 1 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return b[0] != 0, 1, nil
	case Char, VarChar, Decimal:
		if len(b) < 2 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		n := int(binary.LittleEndian.Uint16(b))
		if len(b) < 2+n {
			return nil, 0, fmt.Errorf("types: truncated %s", t)
		}
		return string(b[2 : 2+n]), 2 + n, nil
	case Binary, JSON, XML:
		if len(b) < 4 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		n := int(binary.LittleEndian.Uint32(b))
		if len(b) < 4+n {
			return nil, 0, fmt.Errorf("types: truncated %s", t)
		}
		out := make([]byte, n)
		copy(out, b[4:4+n])
		return out, 4 + n, nil
	case Date, Time:
		if len(b) < 4 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(int32(binary.LittleEndian.Uint32(b))), 4, nil
	case DateTime, Timestamp:
		if len(b) < 8 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		return int64(binary.LittleEndian.Uint64(b)), 8, nil
	case UUID:
		if len(b) < 16 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		var id uuid.UUID
		copy(id[:], b[:16])
		return id, 16, nil
	case Point:
		if len(b) < 16 {
			return nil, 0, fmt.Errorf("types: short buffer for %s", t)
		}
		x := math.Float64frombits(binary.LittleEndian.Uint64(b[0:8]))
		y := math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
		return Coordinate{X: x, Y: y}, 16, nil
	default:
		return nil, 0, fmt.Errorf("types: unsupported type %s", t)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		i, ok := asInt64(v)
		return float64(i), ok
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	default:
		return nil, false
	}
}

// TrimChar applies CHAR's trailing-space-trim comparison policy.
func TrimChar(s string) string { return strings.TrimRight(s, " ") }
