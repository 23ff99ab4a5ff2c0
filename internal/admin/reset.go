// Package admin provides maintenance operations on stored decision-tree data.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/treedata/internal/store"
)

// ResetTimeout is the maximum duration for a maintenance operation.
const ResetTimeout = 30 * time.Second

// ErrWrongTree is returned when a table does not belong to the given tree.
var ErrWrongTree = errors.New("table does not belong to tree")

// Maintenance deletes stored rows, purges the validation log and drops
// cached schemas.
type Maintenance struct {
	Store store.Store
	Now   func() time.Time
}

type resetFn func(ctx context.Context, tx store.RowWriter) (int64, error)

// ClearTable deletes every stored row of one table.
// This is a destructive operation - use with caution.
func (m *Maintenance) ClearTable(ctx context.Context, treeID, tableID int64) (int64, error) {
	ids, err := m.targets(ctx, treeID, tableID)
	if err != nil {
		return 0, err
	}
	return m.runResets(ctx, deleteAll(ids))
}

// ClearTree deletes the stored rows of every table of the tree in one
// transaction.
func (m *Maintenance) ClearTree(ctx context.Context, treeID int64) (int64, error) {
	ids, err := m.targets(ctx, treeID, 0)
	if err != nil {
		return 0, err
	}
	return m.runResets(ctx, deleteAll(ids))
}

// CountRows returns how many rows ClearTable, or ClearTree when tableID is
// zero, would delete.
func (m *Maintenance) CountRows(ctx context.Context, treeID, tableID int64) (int64, error) {
	ids, err := m.targets(ctx, treeID, tableID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, id := range ids {
		n, err := m.Store.CountRows(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("count rows of table %d: %w", id, err)
		}
		total += n
	}
	return total, nil
}

// schemaCache is implemented by stores that cache tree schemas.
type schemaCache interface {
	Invalidate(ctx context.Context, treeID int64) error
}

// FlushSchemaCache drops the cached schema of a tree so the next read sees
// changes made outside this service. It reports false when the store has
// no cache.
func (m *Maintenance) FlushSchemaCache(ctx context.Context, treeID int64) (bool, error) {
	c, ok := m.Store.(schemaCache)
	if !ok {
		return false, nil
	}
	if err := c.Invalidate(ctx, treeID); err != nil {
		return false, fmt.Errorf("flush schema cache of tree %d: %w", treeID, err)
	}
	slog.Info("schema cache flushed", "tree_id", treeID)
	return true, nil
}

// targets resolves the tables of treeID to operate on: tableID alone, or
// every table when tableID is zero.
func (m *Maintenance) targets(ctx context.Context, treeID, tableID int64) ([]int64, error) {
	if tableID != 0 {
		table, err := m.Store.GetTable(ctx, tableID)
		if err != nil {
			return nil, fmt.Errorf("table %d: %w", tableID, err)
		}
		if table.TreeID != treeID {
			return nil, fmt.Errorf("table %d, tree %d: %w", tableID, treeID, ErrWrongTree)
		}
		return []int64{tableID}, nil
	}

	if _, err := m.Store.GetTree(ctx, treeID); err != nil {
		return nil, fmt.Errorf("tree %d: %w", treeID, err)
	}
	tables, err := m.Store.ListTables(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("list tables of tree %d: %w", treeID, err)
	}
	ids := make([]int64, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	return ids, nil
}

// PurgeValidationLog deletes log entries older than the given age.
func (m *Maintenance) PurgeValidationLog(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	n, err := m.Store.PurgeValidationLog(ctx, m.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge validation log: %w", err)
	}
	slog.Info("validation log purged", "deleted", n, "older_than", olderThan)
	return n, nil
}

func (m *Maintenance) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func deleteAll(tableIDs []int64) []resetFn {
	resets := make([]resetFn, len(tableIDs))
	for i, id := range tableIDs {
		resets[i] = deleteRows(id)
	}
	return resets
}

func deleteRows(tableID int64) resetFn {
	return func(ctx context.Context, tx store.RowWriter) (int64, error) {
		n, err := tx.DeleteAllRows(ctx, tableID)
		if err != nil {
			return 0, fmt.Errorf("clear table %d: %w", tableID, err)
		}
		return n, nil
	}
}

func (m *Maintenance) runResets(ctx context.Context, resets []resetFn) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	var total int64
	err := m.Store.WithTx(ctx, func(tx store.RowWriter) error {
		for _, reset := range resets {
			n, err := reset(ctx, tx)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("rows cleared", "tables", len(resets), "deleted", total)
	return total, nil
}
