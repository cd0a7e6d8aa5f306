package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTables is returned when introspection finds nothing to describe.
var ErrNoTables = errors.New("schema has no tables")

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type ForeignKey struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
}

type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Description is the ordered, read-only view of a database schema.
type Description struct {
	Tables []Table `json:"tables"`
}

func (d Description) Lookup(name string) (Table, bool) {
	for _, table := range d.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

// Catalog enumerates tables, columns and foreign keys of one database.
type Catalog interface {
	Tables(ctx context.Context) ([]Table, error)
}

// Describe loads the description from catalog. An empty schema is an error.
func Describe(ctx context.Context, catalog Catalog) (Description, error) {
	if catalog == nil {
		return Description{}, fmt.Errorf("catalog is required")
	}
	tables, err := catalog.Tables(ctx)
	if err != nil {
		return Description{}, fmt.Errorf("describe schema: %w", err)
	}
	if len(tables) == 0 {
		return Description{}, ErrNoTables
	}
	return Description{Tables: tables}, nil
}

// Render formats the description as the text block embedded in the model prompt.
func Render(d Description) string {
	lines := []string{"Esquema de la base de datos:"}
	for _, table := range d.Tables {
		lines = append(lines, "", "Tabla: "+table.Name, "Columnas:")
		for _, column := range table.Columns {
			line := "- " + column.Name + ": " + column.Type
			if column.PrimaryKey {
				line += " (PRIMARY KEY)"
			}
			if !column.Nullable {
				line += " (NOT NULL)"
			}
			lines = append(lines, line)
		}
		if len(table.ForeignKeys) > 0 {
			lines = append(lines, "Relaciones:")
			for _, fk := range table.ForeignKeys {
				lines = append(lines, "- "+strings.Join(fk.ConstrainedColumns, ", ")+" → "+fk.ReferredTable)
			}
		}
	}
	return strings.Join(lines, "\n")
}
