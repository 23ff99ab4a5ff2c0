package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/treedata/internal/schema"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    queries
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: queries{db: pool}}
}

// queries holds the row statements so they run the same way on the pool
// and inside a transaction.
type queries struct {
	db DBTX
}

const treeQuery = `
SELECT id, code, name, schema_version, status
FROM decision_trees
WHERE id = $1`

func (s *PostgresStore) GetTree(ctx context.Context, treeID int64) (schema.Tree, error) {
	var (
		t      schema.Tree
		status string
	)
	err := s.pool.QueryRow(ctx, treeQuery, treeID).Scan(&t.ID, &t.Code, &t.Name, &t.SchemaVersion, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Tree{}, fmt.Errorf("tree %d: %w", treeID, ErrNotFound)
	}
	if err != nil {
		return schema.Tree{}, fmt.Errorf("get tree %d: %w", treeID, err)
	}
	if t.Status, err = schema.ParseStatus(status); err != nil {
		return schema.Tree{}, fmt.Errorf("tree %d: %w", treeID, err)
	}
	return t, nil
}

const tablesQuery = `
SELECT id, decision_tree_id, table_name, direction, status
FROM decision_tree_tables
WHERE decision_tree_id = $1
ORDER BY id`

const tableQuery = `
SELECT id, decision_tree_id, table_name, direction, status
FROM decision_tree_tables
WHERE id = $1`

const columnsQuery = `
SELECT id, table_id, column_name, excel_header_name, description, data_type,
       is_required, status, order_index, format, max_length, precision, scale,
       valid_from, valid_to, is_unique_identifier
FROM table_columns
WHERE table_id = ANY($1)
ORDER BY table_id, order_index, id`

func (s *PostgresStore) ListTables(ctx context.Context, treeID int64) ([]schema.Table, error) {
	rows, err := s.pool.Query(ctx, tablesQuery, treeID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, scanTable)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if err := s.attachColumns(ctx, tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (s *PostgresStore) GetTable(ctx context.Context, tableID int64) (schema.Table, error) {
	rows, err := s.pool.Query(ctx, tableQuery, tableID)
	if err != nil {
		return schema.Table{}, fmt.Errorf("get table %d: %w", tableID, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTable)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.Table{}, fmt.Errorf("table %d: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return schema.Table{}, fmt.Errorf("get table %d: %w", tableID, err)
	}
	tables := []schema.Table{t}
	if err := s.attachColumns(ctx, tables); err != nil {
		return schema.Table{}, err
	}
	return tables[0], nil
}

func (s *PostgresStore) ListActiveColumns(ctx context.Context, tableID int64) ([]schema.Column, error) {
	t, err := s.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return t.ActiveColumns(), nil
}

func (s *PostgresStore) attachColumns(ctx context.Context, tables []schema.Table) error {
	if len(tables) == 0 {
		return nil
	}
	ids := make([]int64, len(tables))
	pos := make(map[int64]int, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
		pos[t.ID] = i
	}

	rows, err := s.pool.Query(ctx, columnsQuery, ids)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, scanColumn)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	for _, c := range cols {
		i := pos[c.TableID]
		tables[i].Columns = append(tables[i].Columns, c)
	}
	return nil
}

func scanTable(row pgx.CollectableRow) (schema.Table, error) {
	var (
		t                 schema.Table
		direction, status string
	)
	if err := row.Scan(&t.ID, &t.TreeID, &t.Name, &direction, &status); err != nil {
		return schema.Table{}, err
	}
	var err error
	if t.Direction, err = schema.ParseDirection(direction); err != nil {
		return schema.Table{}, fmt.Errorf("table %d: %w", t.ID, err)
	}
	if t.Status, err = schema.ParseStatus(status); err != nil {
		return schema.Table{}, fmt.Errorf("table %d: %w", t.ID, err)
	}
	return t, nil
}

func scanColumn(row pgx.CollectableRow) (schema.Column, error) {
	var (
		c                        schema.Column
		alias, desc, format      pgtype.Text
		dataType, status         string
		maxLen, precision, scale pgtype.Int4
		validFrom, validTo       pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &c.TableID, &c.Name, &alias, &desc, &dataType,
		&c.IsRequired, &status, &c.OrderIndex, &format, &maxLen, &precision, &scale,
		&validFrom, &validTo, &c.IsUniqueIdentifier)
	if err != nil {
		return schema.Column{}, err
	}

	c.HeaderAlias = alias.String
	c.Description = desc.String
	c.Format = format.String
	c.MaxLength = intPtr(maxLen)
	c.Precision = intPtr(precision)
	c.Scale = intPtr(scale)
	c.ValidFrom = timePtr(validFrom)
	c.ValidTo = timePtr(validTo)

	if c.DataType, err = schema.ParseDataType(dataType); err != nil {
		return schema.Column{}, fmt.Errorf("column %d: %w", c.ID, err)
	}
	if c.Status, err = schema.ParseStatus(status); err != nil {
		return schema.Column{}, fmt.Errorf("column %d: %w", c.ID, err)
	}
	return c, nil
}

func intPtr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func (s *PostgresStore) ListRows(ctx context.Context, tableID int64) ([]Row, error) {
	return s.q.ListRows(ctx, tableID)
}

func (s *PostgresStore) CountRows(ctx context.Context, tableID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM decision_tree_data WHERE table_id = $1`, tableID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// WithTx runs fn inside a transaction that is committed only when fn
// succeeds.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(RowWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const listRowsQuery = `
SELECT id, decision_tree_id, table_id, row_index, row_data_json, created_at_utc, updated_at_utc
FROM decision_tree_data
WHERE table_id = $1
ORDER BY row_index, id`

func (q queries) ListRows(ctx context.Context, tableID int64) ([]Row, error) {
	rows, err := q.db.Query(ctx, listRowsQuery, tableID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.ID, &r.TreeID, &r.TableID, &r.RowIndex, &r.Payload, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return out, nil
}

const insertRowQuery = `
INSERT INTO decision_tree_data (decision_tree_id, table_id, row_index, row_data_json, created_at_utc, updated_at_utc)
SELECT $1, $2, COALESCE(MAX(row_index), 0) + 1, $3::jsonb, now(), now()
FROM decision_tree_data
WHERE table_id = $2
RETURNING id, row_index, created_at_utc, updated_at_utc`

func (q queries) InsertRow(ctx context.Context, treeID, tableID int64, payload []byte) (Row, error) {
	r := Row{TreeID: treeID, TableID: tableID, Payload: payload}
	err := q.db.QueryRow(ctx, insertRowQuery, treeID, tableID, string(payload)).
		Scan(&r.ID, &r.RowIndex, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Row{}, fmt.Errorf("insert row: %w", err)
	}
	return r, nil
}

func (q queries) UpdateRowPayload(ctx context.Context, rowID int64, payload []byte) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE decision_tree_data SET row_data_json = $2::jsonb, updated_at_utc = now() WHERE id = $1`,
		rowID, string(payload))
	if err != nil {
		return fmt.Errorf("update row %d: %w", rowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("row %d: %w", rowID, ErrNotFound)
	}
	return nil
}

func (q queries) DeleteAllRows(ctx context.Context, tableID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM decision_tree_data WHERE table_id = $1`, tableID)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

var validationLogColumns = []string{
	"import_id", "decision_tree_id", "table_id", "row_index", "column_name",
	"value", "error_type", "error_message", "logged_at_utc",
}

// AppendValidationLog bulk-loads entries with the COPY protocol.
func (s *PostgresStore) AppendValidationLog(ctx context.Context, entries []ValidationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	src := pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
		e := entries[i]
		return []any{
			e.ImportID, e.TreeID, e.TableID, e.RowIndex, pgText(e.ColumnName),
			pgText(e.Value), e.ErrorType, e.Message, e.LoggedAt,
		}, nil
	})
	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"validation_logs"}, validationLogColumns, src); err != nil {
		return fmt.Errorf("append validation log: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeValidationLog(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM validation_logs WHERE logged_at_utc < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge validation log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
