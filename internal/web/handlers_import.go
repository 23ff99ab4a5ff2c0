package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/treedata/internal/core"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// importResponse is the body of every import response, successful or not.
type importResponse struct {
	Message           string                   `json:"message"`
	Code              string                   `json:"code,omitempty"`
	Action            string                   `json:"action,omitempty"`
	ImportID          uuid.UUID                `json:"importId"`
	ImportedRowsCount int                      `json:"importedRowsCount"`
	TablesProcessed   int                      `json:"tablesProcessed"`
	Committed         bool                     `json:"committed"`
	Tables            []core.TableImportResult `json:"tables"`
	Warnings          []validation.Issue       `json:"warnings"`
	Errors            []validation.Issue       `json:"errors"`
}

// parseJSONRequest is the wrapped form of a JSON import. A body that is not
// wrapped is taken as the exchange document itself.
type parseJSONRequest struct {
	JSONContent         string `json:"jsonContent"`
	ReplaceExistingData bool   `json:"replaceExistingData"`
	ContinueOnError     *bool  `json:"continueOnError"`
}

// handleImportExcel imports an uploaded workbook into the tree.
//
// Query parameters:
//   - replaceExisting: delete stored rows of each imported table first
//   - continueOnError: write valid rows even when others fail
func (s *Server) handleImportExcel(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, uploadError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, core.ErrNoFile)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		respondError(w, r, core.ErrNoFile)
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnsupportedFile, header.Filename))
		return
	}

	opts := s.importOptions(r)
	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.ImportSpreadsheet(ctx, treeID, file, opts)
	s.respondImport(w, r, res, err, "Excel imported successfully")
}

// handleParseJSON imports an exchange document. The body is either the
// document itself or a parseJSONRequest wrapping it.
func (s *Server) handleParseJSON(w http.ResponseWriter, r *http.Request) {
	treeID, err := parseID(r, "treeID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, uploadError(err))
		return
	}

	opts := s.importOptions(r)
	doc := body
	var req parseJSONRequest
	if json.Unmarshal(body, &req) == nil && req.JSONContent != "" {
		doc = []byte(req.JSONContent)
		opts.Replace = req.ReplaceExistingData
		if req.ContinueOnError != nil {
			opts.ContinueOnError = *req.ContinueOnError
		}
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.ImportJSON(ctx, treeID, bytes.NewReader(doc), opts)
	s.respondImport(w, r, res, err, "JSON parsed and data imported successfully")
}

// importOptions reads the import query parameters over the configured
// defaults.
func (s *Server) importOptions(r *http.Request) core.ImportOptions {
	opts := s.service.DefaultImportOptions()
	opts.Replace = boolQuery(r, "replaceExisting", false)
	opts.ContinueOnError = boolQuery(r, "continueOnError", opts.ContinueOnError)
	return opts
}

// respondImport writes the import result. A failed import that still
// produced a result returns it with the mapped message so callers can see
// the row issues.
func (s *Server) respondImport(w http.ResponseWriter, r *http.Request, res *core.ImportResult, err error, okMessage string) {
	if err != nil && res == nil {
		respondError(w, r, err)
		return
	}

	resp := importResponse{
		Message:           okMessage,
		ImportID:          res.ImportID,
		ImportedRowsCount: res.TotalImported,
		TablesProcessed:   res.TablesProcessed(),
		Committed:         res.Committed,
		Tables:            res.Tables,
		Warnings:          nonNil(res.Warnings),
		Errors:            nonNil(res.Errors),
	}
	if resp.Tables == nil {
		resp.Tables = []core.TableImportResult{}
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		msg := core.MapError(err)
		logError(r, err, status, msg)
		resp.Message = msg.Message
		resp.Code = msg.Code
		resp.Action = msg.Action
	}
	writeJSON(w, r, status, resp)
}

// uploadError classifies a failure reading the request body.
func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit %d bytes", core.ErrFileTooLarge, tooLarge.Limit)
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	return fmt.Errorf("%w: read body: %v", core.ErrInvalidRequest, err)
}

func nonNil(issues []validation.Issue) []validation.Issue {
	if issues == nil {
		return []validation.Issue{}
	}
	return issues
}
