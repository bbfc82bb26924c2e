package recordmap

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"ticketeer/pkg/platform/sentinel"
	"ticketeer/pkg/platform/tx"
)

// SQLStore is a RowStore over database/sql. Statements run against the
// transaction carried by the context when one is present, so mapper writes
// can join a caller's capacity-check transaction.
type SQLStore struct {
	db      *sql.DB
	table   string
	columns []string
}

// NewSQLStore builds a RowStore for one table. The column list comes from
// the validated schema.
func NewSQLStore(db *sql.DB, schema *Schema) *SQLStore {
	return &SQLStore{db: db, table: schema.Table(), columns: schema.Columns()}
}

func (s *SQLStore) Insert(ctx context.Context, row Row) error {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, idColumn string, id any) (Row, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		strings.Join(s.columns, ", "), s.table, idColumn,
	)
	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get %s: %w", s.table, err)
		}
		return nil, sentinel.ErrNotFound
	}
	row, err := s.scanRow(rows)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.table, err)
	}
	return row, nil
}

func (s *SQLStore) List(ctx context.Context, filter Row) ([]Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(s.columns, ", "), s.table)

	cols := make([]string, 0, len(filter))
	for col := range filter {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := make([]any, 0, len(cols))
	if len(cols) > 0 {
		conds := make([]string, len(cols))
		for i, col := range cols {
			conds[i] = fmt.Sprintf("%s = $%d", col, i+1)
			args = append(args, filter[col])
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := s.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}
	return out, nil
}

func (s *SQLStore) Update(ctx context.Context, idColumn string, id any, cols Row) (bool, error) {
	names := make([]string, 0, len(cols))
	for col := range cols {
		names = append(names, col)
	}
	sort.Strings(names)

	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, col := range names {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, cols[col])
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		s.table, strings.Join(sets, ", "), idColumn, len(names)+1,
	)
	result, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", s.table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s rows affected: %w", s.table, err)
	}
	return affected > 0, nil
}

func (s *SQLStore) scanRow(rows *sql.Rows) (Row, error) {
	dests := make([]any, len(s.columns))
	for i := range dests {
		dests[i] = new(any)
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}

	row := make(Row, len(s.columns))
	for i, col := range s.columns {
		v := *(dests[i].(*any))
		// lib/pq hands text columns back as []byte; transforms expect string.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[col] = v
	}
	return row, nil
}
