package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/treedata/internal/schema"
)

// MemoryStore is an in-process Store used by tests and offline CLI runs.
type MemoryStore struct {
	txMu sync.Mutex // serializes transactions

	mu     sync.RWMutex
	trees  map[int64]schema.Tree
	tables map[int64]schema.Table
	data   memData
	log    []ValidationLogEntry
	now    func() time.Time
}

type memData struct {
	rows   map[int64][]Row // by table
	nextID int64
}

func (d memData) clone() memData {
	out := memData{rows: make(map[int64][]Row, len(d.rows)), nextID: d.nextID}
	for k, v := range d.rows {
		out.rows[k] = append([]Row(nil), v...)
	}
	return out
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees:  make(map[int64]schema.Tree),
		tables: make(map[int64]schema.Table),
		data:   memData{rows: make(map[int64][]Row)},
		now:    time.Now,
	}
}

// PutTree registers a tree and its tables, replacing earlier definitions.
func (m *MemoryStore) PutTree(tree schema.Tree, tables ...schema.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trees[tree.ID] = tree
	for _, t := range tables {
		t.TreeID = tree.ID
		m.tables[t.ID] = t
	}
}

func (m *MemoryStore) GetTree(_ context.Context, treeID int64) (schema.Tree, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trees[treeID]
	if !ok {
		return schema.Tree{}, fmt.Errorf("tree %d: %w", treeID, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) ListTables(_ context.Context, treeID int64) ([]schema.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schema.Table
	for _, t := range m.tables {
		if t.TreeID == treeID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetTable(_ context.Context, tableID int64) (schema.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[tableID]
	if !ok {
		return schema.Table{}, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) ListActiveColumns(ctx context.Context, tableID int64) ([]schema.Column, error) {
	t, err := m.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return t.ActiveColumns(), nil
}

func (m *MemoryStore) ListRows(_ context.Context, tableID int64) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memTx{data: &m.data, now: m.now}.list(tableID), nil
}

func (m *MemoryStore) CountRows(_ context.Context, tableID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data.rows[tableID])), nil
}

// WithTx runs fn against a private copy of the rows and publishes the copy
// only when fn succeeds.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(RowWriter) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.data.clone()
	m.mu.RUnlock()

	if err := fn(memTx{data: &work, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = work
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AppendValidationLog(_ context.Context, entries []ValidationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, entries...)
	return nil
}

func (m *MemoryStore) PurgeValidationLog(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.log[:0]
	var purged int64
	for _, e := range m.log {
		if e.LoggedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.log = kept
	return purged, nil
}

// ValidationLog returns a copy of the logged entries.
func (m *MemoryStore) ValidationLog() []ValidationLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ValidationLogEntry(nil), m.log...)
}

type memTx struct {
	data *memData
	now  func() time.Time
}

func (tx memTx) list(tableID int64) []Row {
	rows := append([]Row(nil), tx.data.rows[tableID]...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RowIndex != rows[j].RowIndex {
			return rows[i].RowIndex < rows[j].RowIndex
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

func (tx memTx) ListRows(ctx context.Context, tableID int64) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.list(tableID), nil
}

func (tx memTx) InsertRow(ctx context.Context, treeID, tableID int64, payload []byte) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	maxIndex := 0
	for _, r := range tx.data.rows[tableID] {
		if r.RowIndex > maxIndex {
			maxIndex = r.RowIndex
		}
	}
	tx.data.nextID++
	now := tx.now().UTC()
	r := Row{
		ID:        tx.data.nextID,
		TreeID:    treeID,
		TableID:   tableID,
		RowIndex:  maxIndex + 1,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx.data.rows[tableID] = append(tx.data.rows[tableID], r)
	return r, nil
}

func (tx memTx) UpdateRowPayload(ctx context.Context, rowID int64, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for tableID, rows := range tx.data.rows {
		for i := range rows {
			if rows[i].ID == rowID {
				rows[i].Payload = append([]byte(nil), payload...)
				rows[i].UpdatedAt = tx.now().UTC()
				tx.data.rows[tableID] = rows
				return nil
			}
		}
	}
	return fmt.Errorf("row %d: %w", rowID, ErrNotFound)
}

func (tx memTx) DeleteAllRows(ctx context.Context, tableID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := int64(len(tx.data.rows[tableID]))
	delete(tx.data.rows, tableID)
	return n, nil
}
