package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/treedata/internal/config"
	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/validation"
)

var fixedNow = time.Date(2025, 6, 2, 14, 5, 9, 0, time.UTC)

const (
	treeID     int64 = 1
	basvuruID  int64 = 10
	notlarID   int64 = 20
	otherTable int64 = 99
)

func intPtr(n int) *int { return &n }

func jobTree() schema.Tree {
	return schema.Tree{ID: treeID, Code: "JOB", Name: "Job Applications", SchemaVersion: 1, Status: schema.StatusActive}
}

func basvuruTable() schema.Table {
	return schema.Table{
		ID: basvuruID, Name: "Basvuru", Direction: schema.DirectionInput, Status: schema.StatusActive,
		Columns: []schema.Column{
			{ID: 1, Name: "AdayId", DataType: schema.TypeInt, IsRequired: true, IsUniqueIdentifier: true, Status: schema.StatusActive, OrderIndex: 1},
			{ID: 2, Name: "AdSoyad", HeaderAlias: "Ad Soyad", DataType: schema.TypeString, IsRequired: true, MaxLength: intPtr(50), Status: schema.StatusActive, OrderIndex: 2},
			{ID: 3, Name: "Maas", DataType: schema.TypeDecimal, Precision: intPtr(10), Scale: intPtr(2), Status: schema.StatusActive, OrderIndex: 3},
		},
	}
}

// notlarTable has no unique identifier column.
func notlarTable() schema.Table {
	return schema.Table{
		ID: notlarID, Name: "Notlar", Direction: schema.DirectionInput, Status: schema.StatusActive,
		Columns: []schema.Column{
			{ID: 21, Name: "Not", DataType: schema.TypeString, IsRequired: true, Status: schema.StatusActive, OrderIndex: 1},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         time.Minute,
			ContinueOnError: true,
		},
		ValidationLog: config.ValidationLogConfig{RetentionDays: 30, CheckInterval: time.Hour},
	}
}

func newTestService(t *testing.T, st store.Store) *Service {
	t.Helper()
	svc := NewService(st, testConfig())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func newMemoryStore() *store.MemoryStore {
	st := store.NewMemoryStore()
	st.PutTree(jobTree(), basvuruTable(), notlarTable())
	st.PutTree(schema.Tree{ID: 2, Code: "LOAN", Status: schema.StatusActive},
		schema.Table{ID: otherTable, Name: "Kredi", Status: schema.StatusActive})
	return st
}

// workbook builds an .xlsx file with one sheet per entry, rows as given.
func workbook(t *testing.T, sheets map[string][][]any) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func storedRecords(t *testing.T, st store.Store, tableID int64) []validation.Record {
	t.Helper()
	rows, err := st.ListRows(context.Background(), tableID)
	require.NoError(t, err)
	out := make([]validation.Record, len(rows))
	for i, r := range rows {
		rec, err := validation.DecodeRecord(r.Payload)
		require.NoError(t, err)
		out[i] = rec
	}
	return out
}

func TestValidateRow(t *testing.T) {
	svc := newTestService(t, newMemoryStore())
	ctx := context.Background()

	res, err := svc.ValidateRow(ctx, treeID, basvuruID, map[string]any{"AdayId": "7", "AdSoyad": "Ayşe", "Extra": 1})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, validation.UnknownColumn, res.Warnings[0].Kind)

	res, err = svc.ValidateRow(ctx, treeID, basvuruID, map[string]any{"AdayId": "x"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)

	_, err = svc.ValidateRow(ctx, treeID, otherTable, map[string]any{})
	assert.ErrorIs(t, err, ErrTableNotFound, "table of another tree")

	_, err = svc.ValidateRow(ctx, treeID, 12345, map[string]any{})
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = svc.ValidateRow(ctx, 404, basvuruID, map[string]any{})
	assert.ErrorIs(t, err, ErrTreeNotFound)
}

func TestValidateRows(t *testing.T) {
	svc := newTestService(t, newMemoryStore())

	res, err := svc.ValidateRows(context.Background(), treeID, basvuruID, []map[string]any{
		{"AdayId": "1", "AdSoyad": "Ali"},
		{"AdayId": "x", "AdSoyad": "Veli"},
		{"AdayId": "3"},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, validation.TypeMismatch, res.Errors[0].Kind)
	assert.Equal(t, 4, res.Errors[1].Row)
	assert.Equal(t, validation.Required, res.Errors[1].Kind)

	_, err = svc.ValidateRows(context.Background(), treeID, otherTable, nil)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

// narrowColumnsStore reports fewer active columns than the stored table.
type narrowColumnsStore struct {
	*store.MemoryStore
}

func (n narrowColumnsStore) ListActiveColumns(ctx context.Context, tableID int64) ([]schema.Column, error) {
	cols, err := n.MemoryStore.ListActiveColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return cols[:1], nil
}

func TestValidateRow_UsesActiveColumns(t *testing.T) {
	svc := newTestService(t, narrowColumnsStore{newMemoryStore()})

	res, err := svc.ValidateRow(context.Background(), treeID, basvuruID, map[string]any{"AdayId": "7", "AdSoyad": "Ayşe"})
	require.NoError(t, err)
	assert.True(t, res.Valid, "%v", res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "AdSoyad", res.Warnings[0].Column)
}

func TestListRows(t *testing.T) {
	st := newMemoryStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.ImportSpreadsheet(ctx, treeID, workbook(t, map[string][][]any{
		"Basvuru": {{"AdayId", "Ad Soyad"}, {1, "Ali"}},
	}), svc.DefaultImportOptions())
	require.NoError(t, err)

	rows, err := svc.ListRows(ctx, treeID, basvuruID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].RowIndex)
	assert.Equal(t, "Ali", rows[0].Data["AdSoyad"].Text())
}

func TestCheckSchema(t *testing.T) {
	st := newMemoryStore()
	svc := newTestService(t, st)

	_, err := svc.CheckSchema(context.Background(), treeID)
	require.NoError(t, err)

	bad := basvuruTable()
	bad.Columns[1].IsUniqueIdentifier = true
	st.PutTree(jobTree(), bad)

	_, err = svc.CheckSchema(context.Background(), treeID)
	assert.ErrorIs(t, err, ErrInvalidSchema)
	assert.ErrorIs(t, err, schema.ErrMultipleUniqueIdentifiers)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "JOB_20250602_140509.xlsx", ExportFileName("JOB", fixedNow))
}

func TestImport_LimiterBusy(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxConcurrent = 1
	cfg.Import.MaxWaitTime = 20 * time.Millisecond
	svc := NewService(newMemoryStore(), cfg)

	require.NoError(t, svc.limiter.Acquire(context.Background()))
	defer svc.limiter.Release()

	_, err := svc.ImportJSON(context.Background(), treeID, bytes.NewReader(nil), svc.DefaultImportOptions())
	assert.True(t, errors.Is(err, ErrTooManyImports))
	assert.Equal(t, 1, svc.ImportLimiterStatus().Active)
}
