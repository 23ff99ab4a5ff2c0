package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/treedata/internal/config"
	"github.com/JonMunkholm/treedata/internal/core"
	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/store"
)

const base = "/api/decision-trees/1/data"

func intPtr(n int) *int { return &n }

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			MaxFileSize:     1 << 20,
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         time.Minute,
			ContinueOnError: true,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutTree(
		schema.Tree{ID: 1, Code: "JOB", Name: "Job Applications", SchemaVersion: 1, Status: schema.StatusActive},
		schema.Table{
			ID: 10, Name: "Basvuru", Status: schema.StatusActive,
			Columns: []schema.Column{
				{ID: 1, Name: "AdayId", DataType: schema.TypeInt, IsRequired: true, IsUniqueIdentifier: true, Status: schema.StatusActive, OrderIndex: 1},
				{ID: 2, Name: "AdSoyad", HeaderAlias: "Ad Soyad", DataType: schema.TypeString, IsRequired: true, MaxLength: intPtr(50), Status: schema.StatusActive, OrderIndex: 2},
			},
		},
	)
	st.PutTree(schema.Tree{ID: 2, Code: "LOAN", Status: schema.StatusActive},
		schema.Table{ID: 99, Name: "Kredi", Status: schema.StatusActive})

	srv := NewServer(core.NewService(st, cfg), cfg)
	t.Cleanup(func() { srv.Shutdown(t.Context()) })
	return srv, st
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Basvuru"))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Basvuru", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var validRows = [][]any{
	{"AdayId", "Ad Soyad"},
	{1, "Ayse Yilmaz"},
	{2, "Mehmet Kaya"},
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestImportExcel(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, uploadRequest(t, base+"/import-excel", "data.xlsx", workbookBytes(t, validRows)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[importResponse](t, rec)
	assert.Equal(t, "Excel imported successfully", resp.Message)
	assert.Equal(t, 2, resp.ImportedRowsCount)
	assert.Equal(t, 1, resp.TablesProcessed)
	assert.True(t, resp.Committed)
	assert.Empty(t, resp.Errors)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, base+"/tables/10/rows", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["count"])
}

func TestImportExcel_StopOnError(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	rows := [][]any{
		{"AdayId", "Ad Soyad"},
		{1, "Ayse Yilmaz"},
		{2, ""},
	}
	req := uploadRequest(t, base+"/import-excel?continueOnError=false", "data.xlsx", workbookBytes(t, rows))
	rec := serve(srv, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[importResponse](t, rec)
	assert.Equal(t, "VAL001", resp.Code)
	assert.False(t, resp.Committed)
	assert.NotEmpty(t, resp.Errors)

	stored, err := st.ListRows(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestImportExcel_RequestErrors(t *testing.T) {
	small := testConfig()
	small.Import.MaxFileSize = 512

	tests := []struct {
		name     string
		cfg      *config.Config
		target   string
		filename string
		content  []byte
		status   int
		code     string
	}{
		{"wrong extension", testConfig(), base + "/import-excel", "data.csv", []byte("a,b"), http.StatusBadRequest, "FILE002"},
		{"no file", testConfig(), base + "/import-excel", "", nil, http.StatusBadRequest, "FILE003"},
		{"not a workbook", testConfig(), base + "/import-excel", "data.xlsx", []byte("plain text"), http.StatusBadRequest, "FILE004"},
		{"too large", small, base + "/import-excel", "data.xlsx", bytes.Repeat([]byte("x"), 4096), http.StatusRequestEntityTooLarge, "FILE001"},
		{"bad tree id", testConfig(), "/api/decision-trees/abc/data/import-excel", "data.xlsx", []byte("x"), http.StatusBadRequest, "REQ001"},
		{"unknown tree", testConfig(), "/api/decision-trees/404/data/import-excel", "data.xlsx", []byte("x"), http.StatusNotFound, "DT001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.cfg)
			rec := serve(srv, uploadRequest(t, tt.target, tt.filename, tt.content))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestExportJSON_ParseJSON_RoundTrip(t *testing.T) {
	srv, st := newTestServer(t, testConfig())
	rec := serve(srv, uploadRequest(t, base+"/import-excel", "data.xlsx", workbookBytes(t, validRows)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, base+"/export-json?pretty=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	doc := rec.Body.String()
	assert.Contains(t, doc, "\n  ")

	// Raw document with replace: rows are replaced, not duplicated.
	req := httptest.NewRequest(http.MethodPost, base+"/parse-json?replaceExisting=true", strings.NewReader(doc))
	rec = serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, "JSON parsed and data imported successfully", resp.Message)
	assert.Equal(t, 2, resp.ImportedRowsCount)

	rows, err := st.ListRows(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// Wrapped document without replace appends.
	wrapped, err := json.Marshal(parseJSONRequest{JSONContent: doc})
	require.NoError(t, err)
	rec = serve(srv, httptest.NewRequest(http.MethodPost, base+"/parse-json", bytes.NewReader(wrapped)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows, err = st.ListRows(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestParseJSON_Errors(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodPost, base+"/parse-json", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE005", decode[ErrorResponse](t, rec).Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, base+"/export-json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := rec.Body.Bytes()

	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/api/decision-trees/2/data/parse-json", bytes.NewReader(doc)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DT004", decode[ErrorResponse](t, rec).Code)
}

func TestExportExcel(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rec := serve(srv, uploadRequest(t, base+"/import-excel", "data.xlsx", workbookBytes(t, validRows)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, base+"/export-excel", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.SpreadsheetContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="JOB_`)

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Basvuru")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"AdayId", "Ad Soyad"}, rows[0])
}

func TestExportExcel_InvalidSheetName(t *testing.T) {
	srv, st := newTestServer(t, testConfig())
	st.PutTree(schema.Tree{ID: 3, Code: "ODEME", Status: schema.StatusActive},
		schema.Table{
			ID: 30, TreeID: 3, Name: "Gelir/Gider", Status: schema.StatusActive,
			Columns: []schema.Column{
				{ID: 31, Name: "Tutar", DataType: schema.TypeInt, Status: schema.StatusActive, OrderIndex: 1},
			},
		})
	require.NoError(t, st.WithTx(t.Context(), func(tx store.RowWriter) error {
		_, err := tx.InsertRow(t.Context(), 3, 30, []byte(`{"Tutar":5}`))
		return err
	}))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/decision-trees/3/data/export-excel", nil))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "DT006", decode[ErrorResponse](t, rec).Code)
}

func TestValidateRow(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		body   string
		status int
		valid  bool
	}{
		{"valid", `{"tableId":10,"rowData":{"AdayId":7,"AdSoyad":"Ayse"}}`, http.StatusOK, true},
		{"missing required", `{"tableId":10,"rowData":{"AdayId":7}}`, http.StatusOK, false},
		{"bad int", `{"tableId":10,"rowData":{"AdayId":"x","AdSoyad":"Ayse"}}`, http.StatusOK, false},
		{"no table", `{"rowData":{}}`, http.StatusBadRequest, false},
		{"foreign table", `{"tableId":99,"rowData":{}}`, http.StatusNotFound, false},
		{"malformed", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, base+"/validate-row", strings.NewReader(tt.body))
			rec := serve(srv, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.valid, body["isValid"])
		})
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	srv, _ := newTestServer(t, cfg)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, base+"/export-json", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, base+"/export-json", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = serve(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	rl := srv.newRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("1.1.1.1"))
}
