package recordmap

import (
	"context"
	"errors"
	"fmt"

	"ticketeer/pkg/platform/sentinel"
)

// Values holds an external-shaped record keyed by field name.
type Values map[string]any

// Row holds a storage-shaped record keyed by column name.
type Row map[string]any

// RowStore is the persistence seam under the mapper. The SQL implementation
// joins any transaction carried by the context; the memory implementation
// backs unit tests.
type RowStore interface {
	Insert(ctx context.Context, row Row) error
	Get(ctx context.Context, idColumn string, id any) (Row, error)
	List(ctx context.Context, filter Row) ([]Row, error)
	// Update applies cols to the row identified by id. The bool reports
	// whether the row existed.
	Update(ctx context.Context, idColumn string, id any, cols Row) (bool, error)
}

// Mapper applies a schema's transforms and name mapping around a RowStore.
type Mapper struct {
	schema   *Schema
	rows     RowStore
	idColumn string
}

// NewMapper wires a schema to its row store. The id column defaults to "id".
func NewMapper(schema *Schema, rows RowStore) *Mapper {
	return &Mapper{schema: schema, rows: rows, idColumn: "id"}
}

// Insert persists input and returns it input-shaped: callers see the values
// they provided (plus applied defaults), not the stored ciphertext.
func (m *Mapper) Insert(ctx context.Context, input Values) (Values, error) {
	out := make(Values, len(input))
	row := make(Row, len(m.schema.fields))

	for key := range input {
		if _, ok := m.schema.resolve(key); !ok {
			return nil, fmt.Errorf("recordmap: %s: unknown field %q", m.schema.table, key)
		}
	}

	for i := range m.schema.fields {
		f := &m.schema.fields[i]
		if f.Generated {
			continue
		}

		v, supplied := lookup(input, f)
		if !supplied {
			if f.Default == nil {
				continue
			}
			v = f.Default()
		}
		out[f.Name] = v

		stored := v
		if f.Write != nil && !(f.Nullable && v == nil) {
			var err error
			stored, err = f.Write(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("recordmap: %s.%s: write transform: %w", m.schema.table, f.Name, err)
			}
		}
		row[f.Column] = stored
	}

	if err := m.rows.Insert(ctx, row); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID loads one record and applies read transforms field by field.
func (m *Mapper) FindByID(ctx context.Context, id any) (Values, error) {
	row, err := m.rows.Get(ctx, m.idColumn, id)
	if err != nil {
		return nil, err
	}
	return m.fromRow(ctx, row)
}

// FindAll loads every record matching filter (external-shaped, plaintext
// columns only) and applies read transforms.
func (m *Mapper) FindAll(ctx context.Context, filter Values) ([]Values, error) {
	colFilter := make(Row, len(filter))
	for key, v := range filter {
		f, ok := m.schema.resolve(key)
		if !ok {
			return nil, fmt.Errorf("recordmap: %s: unknown filter field %q", m.schema.table, key)
		}
		if f.Write != nil {
			return nil, fmt.Errorf("recordmap: %s: cannot filter on transformed field %q", m.schema.table, key)
		}
		colFilter[f.Column] = v
	}

	rows, err := m.rows.List(ctx, colFilter)
	if err != nil {
		return nil, err
	}
	out := make([]Values, 0, len(rows))
	for _, row := range rows {
		record, err := m.fromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Update writes only the columns actually supplied, distinguishing an
// omitted field from one explicitly set to nil. It accepts both field and
// column key casing. A missing row yields (nil, nil); an empty partial
// yields the unchanged record.
func (m *Mapper) Update(ctx context.Context, id any, partial Values) (Values, error) {
	cols := make(Row, len(partial))
	for key, v := range partial {
		f, ok := m.schema.resolve(key)
		if !ok {
			return nil, fmt.Errorf("recordmap: %s: unknown field %q", m.schema.table, key)
		}
		if f.Generated {
			return nil, fmt.Errorf("recordmap: %s: field %q is generated and cannot be updated", m.schema.table, f.Name)
		}

		stored := v
		if f.Write != nil && !(f.Nullable && v == nil) {
			var err error
			stored, err = f.Write(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("recordmap: %s.%s: write transform: %w", m.schema.table, f.Name, err)
			}
		}
		cols[f.Column] = stored
	}

	if len(cols) == 0 {
		record, err := m.FindByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return record, err
	}

	found, err := m.rows.Update(ctx, m.idColumn, id, cols)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return m.FindByID(ctx, id)
}

func (m *Mapper) fromRow(ctx context.Context, row Row) (Values, error) {
	out := make(Values, len(m.schema.fields))
	for i := range m.schema.fields {
		f := &m.schema.fields[i]
		v, ok := row[f.Column]
		if !ok {
			continue
		}
		if f.Read != nil && !(f.Nullable && v == nil) {
			var err error
			v, err = f.Read(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("recordmap: %s.%s: read transform: %w", m.schema.table, f.Name, err)
			}
		}
		out[f.Name] = v
	}
	return out, nil
}

func lookup(input Values, f *Field) (any, bool) {
	if v, ok := input[f.Name]; ok {
		return v, true
	}
	if v, ok := input[f.Column]; ok {
		return v, true
	}
	return nil, false
}
