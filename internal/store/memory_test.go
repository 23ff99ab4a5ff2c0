package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/treedata/internal/schema"
)

func seededMemory() *MemoryStore {
	m := NewMemoryStore()
	m.PutTree(
		schema.Tree{ID: 1, Code: "JOB", Name: "Jobs", SchemaVersion: 1, Status: schema.StatusActive},
		schema.Table{ID: 20, Name: "Pozisyon", Direction: schema.DirectionOutput, Status: schema.StatusActive},
		schema.Table{ID: 10, Name: "Basvuru", Direction: schema.DirectionInput, Status: schema.StatusActive,
			Columns: []schema.Column{
				{ID: 2, Name: "B", DataType: schema.TypeString, Status: schema.StatusActive, OrderIndex: 2},
				{ID: 1, Name: "A", DataType: schema.TypeInt, Status: schema.StatusActive, OrderIndex: 1},
				{ID: 3, Name: "Old", DataType: schema.TypeInt, Status: schema.StatusPassive},
			}},
	)
	return m
}

func TestMemoryStore_Schema(t *testing.T) {
	ctx := context.Background()
	m := seededMemory()

	tables, err := m.ListTables(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Basvuru", tables[0].Name)

	cols, err := m.ListActiveColumns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "A", cols[0].Name)

	_, err = m.GetTree(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetTable(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RowLifecycle(t *testing.T) {
	ctx := context.Background()
	m := seededMemory()

	var first Row
	err := m.WithTx(ctx, func(tx RowWriter) error {
		var err error
		first, err = tx.InsertRow(ctx, 1, 10, []byte(`{"A":1}`))
		if err != nil {
			return err
		}
		_, err = tx.InsertRow(ctx, 1, 10, []byte(`{"A":2}`))
		return err
	})
	require.NoError(t, err)

	rows, err := m.ListRows(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowIndex)
	assert.Equal(t, 2, rows[1].RowIndex)

	err = m.WithTx(ctx, func(tx RowWriter) error {
		return tx.UpdateRowPayload(ctx, first.ID, []byte(`{"A":10}`))
	})
	require.NoError(t, err)

	rows, _ = m.ListRows(ctx, 10)
	assert.JSONEq(t, `{"A":10}`, string(rows[0].Payload))

	err = m.WithTx(ctx, func(tx RowWriter) error {
		n, err := tx.DeleteAllRows(ctx, 10)
		assert.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)

	n, err := m.CountRows(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	m := seededMemory()

	require.NoError(t, m.WithTx(ctx, func(tx RowWriter) error {
		_, err := tx.InsertRow(ctx, 1, 10, []byte(`{"A":1}`))
		return err
	}))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx RowWriter) error {
		if _, err := tx.DeleteAllRows(ctx, 10); err != nil {
			return err
		}
		if _, err := tx.InsertRow(ctx, 1, 10, []byte(`{"A":2}`)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := m.ListRows(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"A":1}`, string(rows[0].Payload))
}

func TestMemoryStore_UpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	m := seededMemory()

	err := m.WithTx(ctx, func(tx RowWriter) error {
		return tx.UpdateRowPayload(ctx, 404, []byte(`{}`))
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
