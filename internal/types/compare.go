package types

import (
	"bytes"
	"math"
	"strings"
)

// Compare defines the total order over values of type t required by
// §4.4: nulls sort less than any non-null (callers pass nil for a SQL
// NULL), NaN sorts above every other float, ±0 compare equal, and
// CHAR values are compared after trimming trailing spaces.
func Compare(a, b any, t DataType) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch t {
	case Int8, Int16, Int32, Int64, Date, Time, DateTime, Timestamp:
		av, _ := asInt64(a)
		bv, _ := asInt64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case Float32, Float64:
		av, _ := asFloat64(a)
		bv, _ := asFloat64(b)
		return compareFloat(av, bv)
	case Boolean:
		av, _ := a.(bool)
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case Char:
		av, _ := asString(a)
		bv, _ := asString(b)
		return strings.Compare(TrimChar(av), TrimChar(bv))
	case VarChar, Decimal:
		av, _ := asString(a)
		bv, _ := asString(b)
		return strings.Compare(av, bv)
	case Binary, JSON, XML:
		av, _ := asBytes(a)
		bv, _ := asBytes(b)
		return bytes.Compare(av, bv)
	case UUID, Point:
		ab, err := Serialize(a, t)
		if err != nil {
			return 0
		}
		bb, err := Serialize(b, t)
		if err != nil {
			return 0
		}
		return bytes.Compare(ab, bb)
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	// ±0 already compare equal under plain float comparison.
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareSerialized compares two already-serialized values of type t
// by decoding both with Deserialize and ordering them with Compare. If
// either value fails to decode, it falls back to raw byte order.
func CompareSerialized(a, b []byte, t DataType) int {
	av, _, errA := Deserialize(a, t)
	bv, _, errB := Deserialize(b, t)
	if errA != nil || errB != nil {
		return bytes.Compare(a, b)
	}
	return Compare(av, bv, t)
}
