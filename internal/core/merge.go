package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// plan settles the batch's write mode and merge keys. A merge into a table
// without a unique identifier falls back to appending, with one warning.
// Valid rows lacking a key value become invalid with a MissingKey error.
func (b *tableBatch) plan() (warnings, errs []validation.Issue) {
	if b.mode != ModeMerge {
		return nil, nil
	}

	uid, ok := b.table.UniqueIdentifier()
	if !ok {
		b.mode = ModeAppend
		if len(b.rows) > 0 {
			warnings = append(warnings, validation.Issue{
				Table: b.table.Name,
				Kind:  validation.SchemaMismatch,
				Message: fmt.Sprintf("Table '%s' has no unique identifier column; all rows were added as new rows. "+
					"Mark a column as unique identifier to update existing rows.", b.table.Name),
			})
		}
		return warnings, nil
	}

	b.keyName = uid.Name
	for i := range b.rows {
		r := &b.rows[i]
		if !r.valid {
			continue
		}
		key, ok := recordKey(r.record, uid.Name)
		if !ok {
			r.valid = false
			errs = append(errs, validation.Issue{
				Table:   b.table.Name,
				Row:     r.number,
				Column:  uid.Name,
				Kind:    validation.MissingKey,
				Message: fmt.Sprintf("unique identifier '%s' is empty; row skipped", uid.Name),
			})
			continue
		}
		r.key = key
	}
	return nil, errs
}

// recordKey returns the text of the key column, matching the column name
// exactly first and then ignoring case. Null and empty values have no key.
func recordKey(rec validation.Record, name string) (string, bool) {
	v, ok := rec[name]
	if !ok {
		for k, kv := range rec {
			if strings.EqualFold(k, name) {
				v, ok = kv, true
				break
			}
		}
	}
	if !ok || v.IsNull() {
		return "", false
	}
	key := v.Text()
	return key, key != ""
}

// write applies every batch in a single transaction. Counts are filled in
// as rows are staged, so on failure they show how far the write got.
func (s *Service) write(ctx context.Context, res *ImportResult, batches []*tableBatch) error {
	res.Tables = make([]TableImportResult, len(batches))
	for i, b := range batches {
		res.Tables[i] = TableImportResult{
			TableID:   b.table.ID,
			Table:     b.table.Name,
			Mode:      b.mode,
			Processed: len(b.rows),
			Skipped:   b.skipped(),
		}
	}

	err := s.store.WithTx(ctx, func(tx store.RowWriter) error {
		for i, b := range batches {
			if err := writeTable(ctx, tx, res.TreeID, b, &res.Tables[i]); err != nil {
				return fmt.Errorf("table %q: %w", b.table.Name, err)
			}
		}
		return nil
	})
	res.total()
	if err != nil {
		return fmt.Errorf("save rows: %w", err)
	}
	res.Committed = true
	return nil
}

func writeTable(ctx context.Context, tx store.RowWriter, treeID int64, b *tableBatch, tr *TableImportResult) error {
	log := logging.WithFields(ctx, "table", b.table.Name, "mode", b.mode)

	var index map[string]int64
	switch b.mode {
	case ModeReplace:
		n, err := tx.DeleteAllRows(ctx, b.table.ID)
		if err != nil {
			return fmt.Errorf("delete rows: %w", err)
		}
		tr.Deleted = n
	case ModeMerge:
		var err error
		if index, err = loadKeyIndex(ctx, tx, b); err != nil {
			return err
		}
	}

	for _, r := range b.rows {
		if !r.valid {
			continue
		}
		payload, err := json.Marshal(r.record)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.number, err)
		}

		if index != nil {
			if id, ok := index[r.key]; ok {
				if err := tx.UpdateRowPayload(ctx, id, payload); err != nil {
					return fmt.Errorf("row %d: update: %w", r.number, err)
				}
				tr.Updated++
				continue
			}
		}

		row, err := tx.InsertRow(ctx, treeID, b.table.ID, payload)
		if err != nil {
			return fmt.Errorf("row %d: insert: %w", r.number, err)
		}
		tr.Inserted++
		if index != nil {
			index[r.key] = row.ID
		}
	}

	log.Debug("table staged",
		"inserted", tr.Inserted,
		"updated", tr.Updated,
		"deleted", tr.Deleted,
		"skipped", tr.Skipped,
	)
	return nil
}

// loadKeyIndex maps the key text of each stored row to its ID. When stored
// rows share a key the earliest row wins.
func loadKeyIndex(ctx context.Context, tx store.RowWriter, b *tableBatch) (map[string]int64, error) {
	rows, err := tx.ListRows(ctx, b.table.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing rows: %w", err)
	}

	index := make(map[string]int64, len(rows))
	for _, r := range rows {
		rec, err := validation.DecodeRecord(r.Payload)
		if err != nil {
			return nil, corruptRow(b.table.ID, r, err)
		}
		key, ok := recordKey(rec, b.keyName)
		if !ok {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = r.ID
		}
	}
	return index, nil
}
