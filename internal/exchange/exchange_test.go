package exchange

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/validation"
)

var exportedAt = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func tree() schema.Tree {
	return schema.Tree{ID: 7, Code: "JOB", Name: "Job Applications", SchemaVersion: 3, Status: schema.StatusActive}
}

func tables() []schema.Table {
	return []schema.Table{
		{
			ID: 1, Name: "Basvuru", Direction: schema.DirectionInput, Status: schema.StatusActive,
			Columns: []schema.Column{
				{ID: 12, Name: "Maas", DataType: schema.TypeDecimal, Status: schema.StatusActive, OrderIndex: 2},
				{ID: 11, Name: "AdayId", DataType: schema.TypeInt, IsRequired: true, Status: schema.StatusActive, OrderIndex: 1},
				{ID: 13, Name: "Tarih", DataType: schema.TypeDate, Format: "dd.MM.yyyy", Status: schema.StatusActive, OrderIndex: 2},
				{ID: 14, Name: "Eski", DataType: schema.TypeString, Status: schema.StatusPassive, OrderIndex: 0},
			},
		},
		{
			ID: 2, Name: "Sonuc", Direction: schema.DirectionOutput, Status: schema.StatusActive,
			Columns: []schema.Column{{ID: 21, Name: "Karar", DataType: schema.TypeString, Status: schema.StatusActive}},
		},
		{
			ID: 3, Name: "Arsiv", Direction: schema.DirectionInput, Status: schema.StatusPassive,
			Columns: []schema.Column{{ID: 31, Name: "Not", DataType: schema.TypeString, Status: schema.StatusActive}},
		},
	}
}

func storedRows() map[int64][]StoredRow {
	return map[int64][]StoredRow{
		1: {
			{Index: 1, Payload: json.RawMessage(`{"AdayId":1,"Maas":12500.50,"Tarih":"2024-01-15"}`)},
			{Index: 2, Payload: json.RawMessage(`{"AdayId":2,"Maas":null}`)},
		},
		3: {{Index: 1, Payload: json.RawMessage(`{"Not":"old"}`)}},
	}
}

func TestBuild(t *testing.T) {
	doc, err := Build(tree(), tables(), storedRows(), Options{}, exportedAt)
	require.NoError(t, err)

	assert.Equal(t, Metadata{TreeID: 7, TreeCode: "JOB", TreeName: "Job Applications", SchemaVersion: 3, ExportedAt: exportedAt}, doc.Metadata)

	require.Len(t, doc.Tables, 1, "empty and inactive tables are left out")
	tbl := doc.Tables[0]
	assert.Equal(t, "Basvuru", tbl.TableName)
	assert.Equal(t, schema.DirectionInput, tbl.Direction)

	var names []string
	for _, c := range tbl.Columns {
		names = append(names, c.ColumnName)
	}
	assert.Equal(t, []string{"AdayId", "Maas", "Tarih"}, names, "sorted by order index then id, inactive dropped")

	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, int64(1), tbl.Rows[0]["AdayId"].AsInt())
	assert.True(t, decimal.RequireFromString("12500.5").Equal(tbl.Rows[0]["Maas"].AsDecimal()))
	assert.True(t, tbl.Rows[1]["Maas"].IsNull())
	assert.Equal(t, 2, doc.RowCount())
}

func TestBuild_IncludeInactive(t *testing.T) {
	doc, err := Build(tree(), tables(), storedRows(), Options{IncludeInactiveTables: true, IncludeInactiveColumns: true}, exportedAt)
	require.NoError(t, err)
	require.Len(t, doc.Tables, 2)
	assert.Equal(t, "Eski", doc.Tables[0].Columns[0].ColumnName)
	assert.Equal(t, "Arsiv", doc.Tables[1].TableName)
}

func TestBuild_CorruptRowFails(t *testing.T) {
	rows := storedRows()
	rows[1] = append(rows[1], StoredRow{Index: 3, Payload: json.RawMessage(`{"AdayId":`)})

	_, err := Build(tree(), tables(), rows, Options{}, exportedAt)
	require.ErrorIs(t, err, ErrCorruptRow)
	assert.Contains(t, err.Error(), `table "Basvuru" row 3`)
}

func TestEncode_Shape(t *testing.T) {
	doc, err := Build(tree(), tables(), storedRows(), Options{}, exportedAt)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, false))

	assert.JSONEq(t, `{
		"metadata": {"treeId": 7, "treeCode": "JOB", "treeName": "Job Applications",
			"schemaVersion": 3, "exportedAt": "2025-03-01T10:30:00Z"},
		"tables": [{
			"tableId": 1, "tableName": "Basvuru", "direction": "Input",
			"columns": [
				{"columnId": 11, "columnName": "AdayId", "dataType": "Int", "isRequired": true, "orderIndex": 1},
				{"columnId": 12, "columnName": "Maas", "dataType": "Decimal", "isRequired": false, "orderIndex": 2},
				{"columnId": 13, "columnName": "Tarih", "dataType": "Date", "isRequired": false, "format": "dd.MM.yyyy", "orderIndex": 2}
			],
			"rows": [
				{"AdayId": 1, "Maas": 12500.5, "Tarih": "2024-01-15"},
				{"AdayId": 2, "Maas": null}
			]
		}]
	}`, buf.String())

	buf.Reset()
	require.NoError(t, Encode(&buf, doc, true))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"metadata\""))
}

func TestParse_RoundTrip(t *testing.T) {
	doc, err := Build(tree(), tables(), storedRows(), Options{}, exportedAt)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, true))

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata, parsed.Metadata)
	require.Len(t, parsed.Tables, 1)
	assert.Equal(t, doc.Tables[0].Columns, parsed.Tables[0].Columns)
	for i := range doc.Tables[0].Rows {
		assert.True(t, doc.Tables[0].Rows[i].Equal(parsed.Tables[0].Rows[i]), "row %d", i)
	}
}

func TestParse_TopLevelTreeFields(t *testing.T) {
	doc, err := Parse(strings.NewReader(`{
		"decisionTreeCode": "JOB",
		"decisionTreeName": "Jobs",
		"schemaVersion": 2,
		"generatedAtUtc": "2024-05-01T08:00:00Z",
		"tables": [{
			"tableCode": "Basvuru", "tableName": "Basvuru", "direction": "Input",
			"columns": [{"columnCode": "AdayId", "columnName": "AdayId", "dataType": "Int", "isRequired": true, "orderIndex": 1}],
			"rows": [{"AdayId": 5}]
		}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "JOB", doc.Metadata.TreeCode)
	assert.Equal(t, "Jobs", doc.Metadata.TreeName)
	assert.Equal(t, 2, doc.Metadata.SchemaVersion)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), doc.Metadata.ExportedAt)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, int64(5), doc.Tables[0].Rows[0]["AdayId"].AsInt())
}

func TestParse_CompactTables(t *testing.T) {
	doc, err := Parse(strings.NewReader(`{
		"metadata": {"decisionTreeId": 7, "decisionTreeCode": "JOB", "schemaVersion": 1},
		"tables": [{
			"tableName": "Basvuru",
			"columns": {"AdayId": "Int", "Ad": "String", "Onay": "Boolean"},
			"rows": [[1, "Ayşe", true], [2, null]]
		}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.Metadata.TreeID)

	tbl := doc.Tables[0]
	require.Len(t, tbl.Columns, 3)
	assert.Equal(t, "Ad", tbl.Columns[1].ColumnName, "object key order is kept")
	assert.Equal(t, schema.TypeBoolean, tbl.Columns[2].DataType)

	require.Len(t, tbl.Rows, 2)
	assert.True(t, tbl.Rows[0].Equal(validation.Record{
		"AdayId": validation.Int(1), "Ad": validation.String("Ayşe"), "Onay": validation.Bool(true),
	}))
	assert.True(t, tbl.Rows[1].Equal(validation.Record{"AdayId": validation.Int(2), "Ad": validation.Null()}))
}

func TestParse_CompactColumnOrder(t *testing.T) {
	doc, err := Parse(strings.NewReader(`{
		"metadata": {"treeCode": "JOB"},
		"tables": [{
			"tableName": "Basvuru",
			"columns": {"AdayId": "Int", "Ad": "String"},
			"columnOrder": ["Ad", "AdayId"],
			"rows": [["Ali", 3]]
		}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Ali", doc.Tables[0].Rows[0]["Ad"].Text())
	assert.Equal(t, int64(3), doc.Tables[0].Rows[0]["AdayId"].AsInt())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{"metadata":`},
		{"not an object", `[1,2]`},
		{"missing tree code", `{"metadata":{"treeName":"x"},"tables":[]}`},
		{"unknown data type", `{"metadata":{"treeCode":"JOB"},"tables":[{"tableName":"T","columns":[{"columnName":"A","dataType":"Float"}],"rows":[]}]}`},
		{"unknown direction", `{"metadata":{"treeCode":"JOB"},"tables":[{"tableName":"T","direction":"Both","rows":[]}]}`},
		{"nested value", `{"metadata":{"treeCode":"JOB"},"tables":[{"tableName":"T","rows":[{"A":{"b":1}}]}]}`},
		{"too many array values", `{"metadata":{"treeCode":"JOB"},"tables":[{"tableName":"T","columns":{"A":"Int"},"rows":[[1,2]]}]}`},
		{"missing table name", `{"metadata":{"treeCode":"JOB"},"tables":[{"rows":[]}]}`},
		{"trailing data", `{"metadata":{"treeCode":"JOB"},"tables":[]} {}`},
		{"rows not a list", `{"metadata":{"treeCode":"JOB"},"tables":[{"tableName":"T","rows":{}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestCheckTree(t *testing.T) {
	doc := &Document{Metadata: Metadata{TreeCode: "JOB"}}
	assert.NoError(t, doc.CheckTree(tree()))

	other := tree()
	other.Code = "LOAN"
	assert.ErrorIs(t, doc.CheckTree(other), ErrTreeCodeMismatch)
}
