// Package api exposes internal/engine's operations surface as JSON over
// HTTP. Grounded on cmd/mindb-server/internal/api/handlers.go's
// Handlers/writeJSON/writeError shape, generalized from SQL query/exec
// endpoints to direct calls against the storage core.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sausheong/qindb/internal/catalog"
	"github.com/sausheong/qindb/internal/engine"
	"github.com/sausheong/qindb/internal/txn"
	"github.com/sausheong/qindb/internal/types"
)

// Handlers holds the engine and logger every route needs.
type Handlers struct {
	eng    *engine.Engine
	logger zerolog.Logger
}

// NewHandlers creates a Handlers bound to eng.
func NewHandlers(eng *engine.Engine, logger zerolog.Logger) *Handlers {
	return &Handlers{eng: eng, logger: logger}
}

// HealthHandler handles GET /health.
func (h *Handlers) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// CreateTableHandler handles POST /tables.
func (h *Handlers) CreateTableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if req.Name == "" || len(req.Columns) == 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "name and columns are required")
			return
		}

		cols := make([]catalog.ColumnDef, len(req.Columns))
		for i, c := range req.Columns {
			name := normalizeTypeName(c.Type)
			if name == "" {
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "unknown column type: "+c.Type)
				return
			}
			cols[i] = catalog.ColumnDef{
				Name: c.Name, Type: dataTypeByName(name), Length: c.Length,
				Nullable: c.Nullable, PrimaryKey: c.PrimaryKey, AutoIncrement: c.AutoIncrement,
			}
		}

		if err := h.eng.CreateTable(req.Name, cols); err != nil {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
	}
}

// DropTableHandler handles DELETE /tables/{name}.
func (h *Handlers) DropTableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := h.eng.DropTable(name); err != nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// BeginHandler handles POST /txn.
func (h *Handlers) BeginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := h.eng.Begin()
		writeJSON(w, http.StatusCreated, TxnBeginResponse{TxnID: uint64(id)})
	}
}

// CommitHandler handles POST /txn/{id}/commit.
func (h *Handlers) CommitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := txnIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if err := h.eng.Commit(id); err != nil {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "committed"})
	}
}

// AbortHandler handles POST /txn/{id}/abort.
func (h *Handlers) AbortHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := txnIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if err := h.eng.Abort(id); err != nil {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
	}
}

// InsertHandler handles POST /tables/{name}/rows.
func (h *Handlers) InsertHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		var req InsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		values, err := h.coerceRow(table, req.Values)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		rowID, err := h.eng.InsertTuple(table, values, txn.ID(req.TxnID))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, InsertResponse{RowID: rowID})
	}
}

// ScanHandler handles GET /tables/{name}/rows?txn=0.
func (h *Handlers) ScanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		txnID, err := queryTxnID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		rows, err := h.eng.ScanTable(table, txnID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out := make([]RowResponse, len(rows))
		for i, row := range rows {
			out[i] = RowResponse{RowID: row.RowID, Values: row.Values}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// UpdateHandler handles PUT /tables/{name}/rows/{rowId}.
func (h *Handlers) UpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		rowID, err := rowIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		values, err := h.coerceRow(table, req.Values)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if err := h.eng.UpdateTuple(table, rowID, values, txn.ID(req.TxnID)); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

// DeleteRowHandler handles DELETE /tables/{name}/rows/{rowId}?txn=.
func (h *Handlers) DeleteRowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		rowID, err := rowIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		txnID, err := queryTxnID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if err := h.eng.DeleteTuple(table, rowID, txnID); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateIndexHandler handles POST /tables/{name}/indexes.
func (h *Handlers) CreateIndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		var req CreateIndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := h.eng.CreateIndex(table, req.Name, req.Column, req.Unique); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
	}
}

// DropIndexHandler handles DELETE /tables/{name}/indexes/{index}.
func (h *Handlers) DropIndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		index := chi.URLParam(r, "index")
		if err := h.eng.DropIndex(table, index); err != nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// IndexSearchHandler handles GET /tables/{name}/indexes/{index}/search?key=.
func (h *Handlers) IndexSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		index := chi.URLParam(r, "index")
		keyType, err := h.eng.IndexKeyType(table, index)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		key := coerceQueryValue(r.URL.Query().Get("key"), keyType)
		rowID, found, err := h.eng.IndexSearch(table, index, key)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"found": found, "rowId": rowID})
	}
}

// IndexRangeHandler handles GET /tables/{name}/indexes/{index}/range?lo=&hi=.
func (h *Handlers) IndexRangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := chi.URLParam(r, "name")
		index := chi.URLParam(r, "index")
		keyType, err := h.eng.IndexKeyType(table, index)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		lo := coerceQueryValue(r.URL.Query().Get("lo"), keyType)
		hi := coerceQueryValue(r.URL.Query().Get("hi"), keyType)
		entries, err := h.eng.IndexRange(table, index, lo, hi)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// VacuumHandler handles POST /vacuum?table=.
func (h *Handlers) VacuumHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := r.URL.Query().Get("table")
		stats, err := h.eng.Vacuum(table)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// AnalyzeHandler handles POST /analyze?table=.
func (h *Handlers) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := r.URL.Query().Get("table")
		stats, err := h.eng.Analyze(table)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// coerceRow converts JSON-decoded values (numbers always float64) into
// the Go types internal/types.Serialize expects for each column.
func (h *Handlers) coerceRow(tableName string, values []any) ([]any, error) {
	def, err := h.eng.TableDef(tableName)
	if err != nil {
		return nil, err
	}
	if len(values) != len(def.Columns) {
		return nil, errors.New("api: expected " + strconv.Itoa(len(def.Columns)) + " values")
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = coerceValue(v, def.Columns[i].Type)
	}
	return out, nil
}

// coerceQueryValue parses a raw query-string value into the Go type
// internal/types.Serialize expects for t, since URL query values arrive
// as plain strings regardless of the index's key type.
func coerceQueryValue(raw string, t types.DataType) any {
	switch t {
	case types.Int8, types.Int16, types.Int32, types.Int64, types.Date, types.Time, types.DateTime, types.Timestamp:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return raw
		}
		return n
	case types.Float32, types.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return f
	case types.Boolean:
		return raw == "true" || raw == "1"
	default:
		return raw
	}
}

func coerceValue(v any, t types.DataType) any {
	if v == nil {
		return nil
	}
	switch t {
	case types.Int8, types.Int16, types.Int32, types.Int64, types.Date, types.Time, types.DateTime, types.Timestamp:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case types.Binary, types.JSON, types.XML:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
	}
	return v
}

func dataTypeByName(name string) types.DataType {
	for t := types.Invalid; t <= types.Point; t++ {
		if t.String() == name {
			return t
		}
	}
	return types.Invalid
}

func txnIDParam(r *http.Request) (txn.ID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("api: invalid txn id")
	}
	return txn.ID(n), nil
}

func rowIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "rowId")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("api: invalid row id")
	}
	return n, nil
}

func queryTxnID(r *http.Request) (txn.ID, error) {
	raw := r.URL.Query().Get("txn")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("api: invalid txn query parameter")
	}
	return txn.ID(n), nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	if errors.Is(err, catalog.ErrExists) {
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
