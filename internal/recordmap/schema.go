// Package recordmap is a generic record mapper with per-field write/read
// transforms. The attendee PII columns flow through it exactly once on write
// and once on read; the transforms are where sealing and unsealing happen.
package recordmap

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Transform converts a field value on its way in or out of storage. It takes
// a context because encrypting transforms call into the key hierarchy.
type Transform func(ctx context.Context, v any) (any, error)

// Field declares one column of a mapped record.
type Field struct {
	// Name is the external, camelCase field name.
	Name string
	// Column is the storage name. Derived from Name (snake_case) when empty.
	Column string
	// Generated fields are produced by the database and excluded from
	// insert payloads.
	Generated bool
	// Nullable fields pass nil through untouched in both directions. An
	// absent phone number is a legitimate state, not a value to encrypt.
	Nullable bool
	// Default supplies a value when the field is omitted on insert.
	Default func() any
	// Write and Read are applied on the way into and out of storage.
	Write Transform
	Read  Transform
}

// Schema is a validated set of fields for one table. The name mapping is
// fixed at construction so a schema/input mismatch surfaces at startup, not
// as a silent runtime miss.
type Schema struct {
	table   string
	fields  []Field
	byName  map[string]*Field
	aliases map[string]string // Name and Column both resolve to Name
}

// NewSchema validates the field set and builds the name-mapping table.
func NewSchema(table string, fields []Field) (*Schema, error) {
	if table == "" {
		return nil, fmt.Errorf("recordmap: table name is required")
	}
	s := &Schema{
		table:   table,
		fields:  make([]Field, len(fields)),
		byName:  make(map[string]*Field, len(fields)),
		aliases: make(map[string]string, 2*len(fields)),
	}
	copy(s.fields, fields)

	seenColumns := make(map[string]string, len(fields))
	for i := range s.fields {
		f := &s.fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("recordmap: %s: field name is required", table)
		}
		if f.Column == "" {
			f.Column = snakeCase(f.Name)
		}
		if f.Generated && (f.Default != nil || f.Write != nil) {
			return nil, fmt.Errorf("recordmap: %s.%s: generated fields cannot carry defaults or write transforms", table, f.Name)
		}
		if _, ok := s.byName[f.Name]; ok {
			return nil, fmt.Errorf("recordmap: %s: duplicate field %q", table, f.Name)
		}
		if prev, ok := seenColumns[f.Column]; ok {
			return nil, fmt.Errorf("recordmap: %s: fields %q and %q map to the same column %q", table, prev, f.Name, f.Column)
		}
		if alias, ok := s.aliases[f.Column]; ok && alias != f.Name {
			return nil, fmt.Errorf("recordmap: %s: column %q collides with field %q", table, f.Column, alias)
		}
		s.byName[f.Name] = f
		seenColumns[f.Column] = f.Name
		s.aliases[f.Name] = f.Name
		s.aliases[f.Column] = f.Name
	}
	return s, nil
}

// Table returns the storage table name.
func (s *Schema) Table() string { return s.table }

// Columns returns the storage column names in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.fields))
	for i := range s.fields {
		cols[i] = s.fields[i].Column
	}
	return cols
}

// resolve maps an external key (either casing) to its field. The bool is
// false for keys outside the schema.
func (s *Schema) resolve(key string) (*Field, bool) {
	name, ok := s.aliases[key]
	if !ok {
		return nil, false
	}
	return s.byName[name], true
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
