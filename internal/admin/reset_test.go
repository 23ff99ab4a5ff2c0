package admin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/store"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutTree(schema.Tree{ID: 1, Code: "JOB"},
		schema.Table{ID: 10, Name: "Basvuru"},
		schema.Table{ID: 20, Name: "Notlar"})
	st.PutTree(schema.Tree{ID: 2, Code: "LOAN"}, schema.Table{ID: 30, Name: "Kredi"})

	err := st.WithTx(context.Background(), func(tx store.RowWriter) error {
		for _, row := range []struct{ tree, table int64 }{{1, 10}, {1, 10}, {1, 20}, {2, 30}} {
			if _, err := tx.InsertRow(context.Background(), row.tree, row.table, []byte(`{"a":1}`)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return st
}

func countRows(t *testing.T, st store.Store, tableID int64) int64 {
	t.Helper()
	n, err := st.CountRows(context.Background(), tableID)
	require.NoError(t, err)
	return n
}

func TestClearTable(t *testing.T) {
	st := seededStore(t)
	m := &Maintenance{Store: st}

	n, err := m.ClearTable(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Zero(t, countRows(t, st, 10))
	assert.EqualValues(t, 1, countRows(t, st, 20))

	_, err = m.ClearTable(context.Background(), 1, 30)
	assert.ErrorIs(t, err, ErrWrongTree)
	assert.EqualValues(t, 1, countRows(t, st, 30))

	_, err = m.ClearTable(context.Background(), 1, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearTree(t *testing.T) {
	st := seededStore(t)
	m := &Maintenance{Store: st}

	n, err := m.ClearTree(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Zero(t, countRows(t, st, 10))
	assert.Zero(t, countRows(t, st, 20))
	assert.EqualValues(t, 1, countRows(t, st, 30))

	_, err = m.ClearTree(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCountRows(t *testing.T) {
	st := seededStore(t)
	m := &Maintenance{Store: st}

	tests := []struct {
		name    string
		tree    int64
		table   int64
		want    int64
		wantErr error
	}{
		{"whole tree", 1, 0, 3, nil},
		{"one table", 1, 10, 2, nil},
		{"other tree", 2, 0, 1, nil},
		{"table of another tree", 1, 30, 0, ErrWrongTree},
		{"unknown tree", 404, 0, 0, store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := m.CountRows(context.Background(), tt.tree, tt.table)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	// Counting deletes nothing.
	assert.EqualValues(t, 2, countRows(t, st, 10))
}

func TestFlushSchemaCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cached := store.NewCachedStore(seededStore(t), rdb, time.Minute, "admin")
	_, err := cached.ListTables(ctx, 1)
	require.NoError(t, err)
	_, err = cached.ListTables(ctx, 2)
	require.NoError(t, err)
	require.True(t, mr.Exists("admin:schema:1:v0"))

	flushed, err := (&Maintenance{Store: cached}).FlushSchemaCache(ctx, 1)
	require.NoError(t, err)
	assert.True(t, flushed)
	assert.False(t, mr.Exists("admin:schema:1:v0"))
	assert.True(t, mr.Exists("admin:schema:2:v0"))

	flushed, err = (&Maintenance{Store: seededStore(t)}).FlushSchemaCache(ctx, 1)
	require.NoError(t, err)
	assert.False(t, flushed, "store without cache")
}

func TestPurgeValidationLog(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	require.NoError(t, st.AppendValidationLog(context.Background(), []store.ValidationLogEntry{
		{TreeID: 1, Message: "old", LoggedAt: now.AddDate(0, 0, -40)},
		{TreeID: 1, Message: "recent", LoggedAt: now.AddDate(0, 0, -1)},
	}))

	m := &Maintenance{Store: st, Now: func() time.Time { return now }}
	n, err := m.PurgeValidationLog(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left := st.ValidationLog()
	require.Len(t, left, 1)
	assert.Equal(t, "recent", left[0].Message)
}
