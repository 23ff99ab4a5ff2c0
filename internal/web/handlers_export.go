package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/treedata/internal/core"
	"github.com/JonMunkholm/treedata/internal/exchange"
	"github.com/JonMunkholm/treedata/internal/logging"
)

// exportOptions reads includeInactiveTables and includeInactiveColumns.
func exportOptions(r *http.Request) core.ExportOptions {
	return core.ExportOptions{
		IncludeInactiveTables:  boolQuery(r, "includeInactiveTables", false),
		IncludeInactiveColumns: boolQuery(r, "includeInactiveColumns", false),
	}
}

// handleExportJSON writes the tree's schema and rows as an exchange document.
// Set pretty=true for indented output.
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	doc, err := s.service.ExportJSON(r.Context(), treeID, exportOptions(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := exchange.Encode(&buf, doc, boolQuery(r, "pretty", false)); err != nil {
		respondError(w, r, fmt.Errorf("encode export: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "error", err)
	}
}

// handleExportExcel writes the tree's rows as a workbook attachment, one
// sheet per table. The workbook is built in memory so failures can still
// be reported as JSON errors.
func (s *Server) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	tree, err := s.service.Tree(r.Context(), treeID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if _, err := s.service.ExportSpreadsheet(r.Context(), treeID, &buf, exportOptions(r)); err != nil {
		respondError(w, r, err)
		return
	}

	filename := core.ExportFileName(tree.Code, time.Now())
	w.Header().Set("Content-Type", core.SpreadsheetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "error", err)
	}
}
