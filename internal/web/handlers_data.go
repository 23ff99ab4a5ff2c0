package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/treedata/internal/core"
)

// validateRowRequest is the body of a validate-row call.
type validateRowRequest struct {
	TableID int64          `json:"tableId"`
	RowData map[string]any `json:"rowData"`
}

// handleValidateRow checks a single row without storing it.
func (s *Server) handleValidateRow(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req validateRowRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: decode row: %v", core.ErrInvalidRequest, err))
		return
	}
	if req.TableID < 1 {
		respondError(w, r, fmt.Errorf("%w: tableId is required", core.ErrInvalidRequest))
		return
	}
	if req.RowData == nil {
		req.RowData = map[string]any{}
	}

	result, err := s.service.ValidateRow(r.Context(), treeID, req.TableID, req.RowData)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleListRows returns a table's stored rows.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	tableID, err := parseID(r, "tableID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	rows, err := s.service.ListRows(r.Context(), treeID, tableID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"rows":  rows,
		"count": len(rows),
	})
}

// handleHealth reports liveness and import capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.ImportLimiterStatus(),
	})
}
