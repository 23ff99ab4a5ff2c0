package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/treedata/internal/config"
	"github.com/JonMunkholm/treedata/internal/schema"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// Service runs imports, exports and row validation against a Store.
// It is safe for concurrent use; every call keeps its own state.
type Service struct {
	store   store.Store
	cfg     *config.Config
	limiter *ImportLimiter
	now     func() time.Time
}

// NewService creates a service backed by st.
func NewService(st store.Store, cfg *config.Config) *Service {
	return &Service{
		store:   st,
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		now:     time.Now,
	}
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// DefaultImportOptions returns the configured import defaults.
func (s *Service) DefaultImportOptions() ImportOptions {
	return ImportOptions{ContinueOnError: s.cfg.Import.ContinueOnError}
}

// ImportLimiterStatus returns the current import concurrency state.
func (s *Service) ImportLimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
// Used during shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// withTimeout bounds a single import or export by the configured timeout.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Import.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Import.Timeout)
}

// Tree returns the decision tree with the given ID.
func (s *Service) Tree(ctx context.Context, treeID int64) (schema.Tree, error) {
	return s.loadTree(ctx, treeID)
}

func (s *Service) loadTree(ctx context.Context, treeID int64) (schema.Tree, error) {
	tree, err := s.store.GetTree(ctx, treeID)
	if errors.Is(err, store.ErrNotFound) {
		return schema.Tree{}, fmt.Errorf("tree %d: %w", treeID, ErrTreeNotFound)
	}
	if err != nil {
		return schema.Tree{}, fmt.Errorf("load tree %d: %w", treeID, err)
	}
	return tree, nil
}

// loadTable returns the table when it exists and belongs to treeID.
func (s *Service) loadTable(ctx context.Context, treeID, tableID int64) (schema.Table, error) {
	if _, err := s.loadTree(ctx, treeID); err != nil {
		return schema.Table{}, err
	}
	table, err := s.store.GetTable(ctx, tableID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && table.TreeID != treeID) {
		return schema.Table{}, fmt.Errorf("table %d: %w", tableID, ErrTableNotFound)
	}
	if err != nil {
		return schema.Table{}, fmt.Errorf("load table %d: %w", tableID, err)
	}
	return table, nil
}

// activeTable loads a table with its current active columns.
func (s *Service) activeTable(ctx context.Context, treeID, tableID int64) (schema.Table, error) {
	table, err := s.loadTable(ctx, treeID, tableID)
	if err != nil {
		return schema.Table{}, err
	}
	cols, err := s.store.ListActiveColumns(ctx, tableID)
	if err != nil {
		return schema.Table{}, fmt.Errorf("list columns of table %d: %w", tableID, err)
	}
	table.Columns = cols
	return table, nil
}

// ValidateRow checks one row against a table's active columns without
// storing it. Data errors are reported in the result, not as an error.
func (s *Service) ValidateRow(ctx context.Context, treeID, tableID int64, row map[string]any) (validation.Result, error) {
	table, err := s.activeTable(ctx, treeID, tableID)
	if err != nil {
		return validation.Result{}, err
	}
	return validation.ValidateRow(table, row, 0), nil
}

// ValidateRows is ValidateRow for a batch. Issues are numbered as
// spreadsheet rows, the first row being 2.
func (s *Service) ValidateRows(ctx context.Context, treeID, tableID int64, rows []map[string]any) (validation.Result, error) {
	table, err := s.activeTable(ctx, treeID, tableID)
	if err != nil {
		return validation.Result{}, err
	}
	return validation.ValidateRows(table, rows), nil
}

// ListRows returns a table's stored rows with decoded payloads.
func (s *Service) ListRows(ctx context.Context, treeID, tableID int64) ([]RowView, error) {
	if _, err := s.loadTable(ctx, treeID, tableID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRows(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("list rows of table %d: %w", tableID, err)
	}

	out := make([]RowView, 0, len(rows))
	for _, r := range rows {
		rec, err := validation.DecodeRecord(r.Payload)
		if err != nil {
			return nil, corruptRow(tableID, r, err)
		}
		out = append(out, RowView{
			ID:        r.ID,
			RowIndex:  r.RowIndex,
			Data:      rec,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// CheckSchema validates every table of the tree and returns the problems
// joined, each wrapping ErrInvalidSchema.
func (s *Service) CheckSchema(ctx context.Context, treeID int64) ([]schema.Table, error) {
	if _, err := s.loadTree(ctx, treeID); err != nil {
		return nil, err
	}
	tables, err := s.store.ListTables(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("list tables of tree %d: %w", treeID, err)
	}
	return tables, checkTables(tables)
}

func checkTables(tables []schema.Table) error {
	var errs []error
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidSchema, err))
		}
	}
	return errors.Join(errs...)
}
