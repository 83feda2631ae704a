package api

import "strings"

// ColumnSpec is the wire shape of one column in a CreateTable request.
type ColumnSpec struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Length        int    `json:"length,omitempty"`
	Nullable      bool   `json:"nullable,omitempty"`
	PrimaryKey    bool   `json:"primaryKey,omitempty"`
	AutoIncrement bool   `json:"autoIncrement,omitempty"`
}

// CreateTableRequest is the body of POST /tables.
type CreateTableRequest struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// CreateIndexRequest is the body of POST /tables/{name}/indexes.
type CreateIndexRequest struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Unique bool   `json:"unique,omitempty"`
}

// InsertRequest is the body of POST /tables/{name}/rows.
type InsertRequest struct {
	TxnID  uint64 `json:"txnId"`
	Values []any  `json:"values"`
}

// InsertResponse answers InsertRequest.
type InsertResponse struct {
	RowID uint64 `json:"rowId"`
}

// UpdateRequest is the body of PUT /tables/{name}/rows/{rowId}.
type UpdateRequest struct {
	TxnID  uint64 `json:"txnId"`
	Values []any  `json:"values"`
}

// RowResponse is one tuple in a ScanTable response.
type RowResponse struct {
	RowID  uint64 `json:"rowId"`
	Values []any  `json:"values"`
}

// TxnBeginResponse answers POST /txn.
type TxnBeginResponse struct {
	TxnID uint64 `json:"txnId"`
}

// ErrorResponse is the body written for any non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code alongside the message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// columnTypeNames maps the wire type name to types.DataType, matching
// types.DataType.String() case-insensitively.
var columnTypeNames = map[string]string{
	"INT8": "INT8", "INT16": "INT16", "INT32": "INT32", "INT64": "INT64",
	"FLOAT32": "FLOAT32", "FLOAT64": "FLOAT64", "DECIMAL": "DECIMAL",
	"BOOLEAN": "BOOLEAN", "BOOL": "BOOLEAN",
	"CHAR": "CHAR", "VARCHAR": "VARCHAR", "BINARY": "BINARY",
	"DATE": "DATE", "TIME": "TIME", "DATETIME": "DATETIME",
	"TIMESTAMP": "TIMESTAMP", "JSON": "JSON", "XML": "XML",
	"UUID": "UUID", "POINT": "POINT",
}

func normalizeTypeName(s string) string {
	return columnTypeNames[strings.ToUpper(s)]
}
