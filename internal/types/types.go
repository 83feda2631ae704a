// Package types implements the TypeSerializer and KeyComparator: a
// deterministic binary encoding and total ordering for every SQL
// DataType the storage core understands.
package types

import "fmt"

// DataType enumerates every column type the serializer and comparator
// support. Values line up with the subset named in §4.4 plus the
// spatial POINT case required for geometry columns; the wider
// original enum (DECIMAL precision variants, TEXT/BLOB size tiers,
// etc.) is deliberately flattened to what the core actually encodes.
type DataType uint8

const (
	Invalid DataType = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Decimal
	Boolean
	Char    // fixed-length, trailing-space-trimmed comparison
	VarChar // variable-length string
	Binary  // variable-length byte string
	Date    // days since 1970-01-01
	Time    // seconds since midnight
	DateTime
	Timestamp
	JSON
	XML
	UUID
	Point // WKB-style, only POINT required
)

// String names a DataType for logging and error messages.
func (t DataType) String() string {
	switch t {
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case Decimal:
		return "DECIMAL"
	case Boolean:
		return "BOOLEAN"
	case Char:
		return "CHAR"
	case VarChar:
		return "VARCHAR"
	case Binary:
		return "BINARY"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case DateTime:
		return "DATETIME"
	case Timestamp:
		return "TIMESTAMP"
	case JSON:
		return "JSON"
	case XML:
		return "XML"
	case UUID:
		return "UUID"
	case Point:
		return "POINT"
	default:
		return "INVALID"
	}
}

// IsFixedSize reports whether values of t always serialize (excluding
// the leading null flag) to the same number of bytes.
func (t DataType) IsFixedSize() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Float32, Float64, Boolean, Date, Time, DateTime, Timestamp, UUID, Point:
		return true
	default:
		return false
	}
}

// FixedSize returns the payload size in bytes for a fixed-size type,
// or 0 if t is not fixed-size.
func (t DataType) FixedSize() int {
	switch t {
	case Int8, Boolean:
		return 1
	case Int16:
		return 2
	case Int32, Date, Time:
		return 4
	case Int64, Float64, DateTime, Timestamp:
		return 8
	case Float32:
		return 4
	case UUID:
		return 16
	case Point:
		return 16 // two float64 (x, y)
	default:
		return 0
	}
}

// ErrTypeMismatch is returned by Serialize when a Go value does not
// match the shape DataType expects.
type ErrTypeMismatch struct {
	Type  DataType
	Value any
}

func (e ErrTypeMismatch) Error() string {
	return fmt.Sprintf("types: value %v (%T) is not valid for %s", e.Value, e.Value, e.Type)
}
