package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/database"
)

// NewCatalog picks the introspection strategy for dialect. schemaName applies
// to information_schema dialects and defaults to "public" for Postgres and
// "main" for DuckDB.
func NewCatalog(db *sql.DB, dialect database.Dialect, schemaName string) (Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	switch dialect {
	case database.DialectPostgres:
		if schemaName == "" {
			schemaName = "public"
		}
		return &InformationSchemaCatalog{db: db, schema: schemaName}, nil
	case database.DialectDuckDB:
		if schemaName == "" || schemaName == "public" {
			schemaName = "main"
		}
		return &InformationSchemaCatalog{db: db, schema: schemaName}, nil
	case database.DialectSQLite:
		return &SQLiteCatalog{db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// InformationSchemaCatalog reads the ANSI information_schema views shared by
// Postgres and DuckDB.
type InformationSchemaCatalog struct {
	db     *sql.DB
	schema string
}

func NewInformationSchemaCatalog(db *sql.DB, schemaName string) *InformationSchemaCatalog {
	return &InformationSchemaCatalog{db: db, schema: schemaName}
}

func (c *InformationSchemaCatalog) Tables(ctx context.Context) ([]Table, error) {
	tables, index, err := c.listTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}

	primaryKeys, err := c.primaryKeys(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
SELECT table_name, column_name, data_type, is_nullable, character_maximum_length, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			tableName, columnName, dataType, isNullable string
			maxLength, precision, scale                 sql.NullInt64
		)
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &maxLength, &precision, &scale); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		position, ok := index[tableName]
		if !ok {
			continue
		}
		tables[position].Columns = append(tables[position].Columns, Column{
			Name:       columnName,
			Type:       formatType(dataType, maxLength, precision, scale),
			Nullable:   strings.EqualFold(isNullable, "YES"),
			PrimaryKey: primaryKeys[tableName+"."+columnName],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	if err := c.attachForeignKeys(ctx, tables, index); err != nil {
		return nil, err
	}
	return tables, nil
}

func (c *InformationSchemaCatalog) listTables(ctx context.Context) ([]Table, map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`, c.schema)
	if err != nil {
		return nil, nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]Table, 0)
	index := map[string]int{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, fmt.Errorf("scan table: %w", err)
		}
		index[name] = len(tables)
		tables = append(tables, Table{Name: name, Columns: []Column{}, ForeignKeys: []ForeignKey{}})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, index, nil
}

func (c *InformationSchemaCatalog) primaryKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.table_schema = tc.table_schema
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1`, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := map[string]bool{}
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys[tableName+"."+columnName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}
	return keys, nil
}

func (c *InformationSchemaCatalog) attachForeignKeys(ctx context.Context, tables []Table, index map[string]int) error {
	rows, err := c.db.QueryContext(ctx, `
SELECT tc.table_name, tc.constraint_name, kcu.column_name, ccu.table_schema, ccu.table_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name
 AND kcu.constraint_schema = tc.constraint_schema
 AND kcu.table_name = tc.table_name
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
 AND ccu.constraint_schema = tc.constraint_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`, c.schema)
	if err != nil {
		return fmt.Errorf("list foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// constraint_column_usage fans composite keys out, one row per referenced column.
	type key struct{ table, constraint string }
	positions := map[key]int{}
	for rows.Next() {
		var tableName, constraintName, columnName, referredSchema, referredTable string
		if err := rows.Scan(&tableName, &constraintName, &columnName, &referredSchema, &referredTable); err != nil {
			return fmt.Errorf("scan foreign key: %w", err)
		}
		// References into another schema stay qualified so generated SQL resolves.
		if referredSchema != "" && referredSchema != c.schema {
			referredTable = referredSchema + "." + referredTable
		}
		position, ok := index[tableName]
		if !ok {
			continue
		}
		k := key{table: tableName, constraint: constraintName}
		fkPosition, seen := positions[k]
		if !seen {
			fkPosition = len(tables[position].ForeignKeys)
			positions[k] = fkPosition
			tables[position].ForeignKeys = append(tables[position].ForeignKeys, ForeignKey{ReferredTable: referredTable})
		}
		fk := &tables[position].ForeignKeys[fkPosition]
		if !containsString(fk.ConstrainedColumns, columnName) {
			fk.ConstrainedColumns = append(fk.ConstrainedColumns, columnName)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate foreign keys: %w", err)
	}
	return nil
}

// SQLiteCatalog reads sqlite_master and the pragma table-valued functions.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

func (c *SQLiteCatalog) Tables(ctx context.Context) ([]Table, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT name
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	_ = rows.Close()

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		columns, err := c.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		foreignKeys, err := c.foreignKeys(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: columns, ForeignKeys: foreignKeys})
	}
	return tables, nil
}

func (c *SQLiteCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var (
			name, columnType string
			notNull, pk      int
		)
		if err := rows.Scan(&name, &columnType, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("scan column for %q: %w", table, err)
		}
		columns = append(columns, Column{
			Name:       name,
			Type:       strings.ToUpper(columnType),
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %q: %w", table, err)
	}
	return columns, nil
}

func (c *SQLiteCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, "table", "from" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	foreignKeys := make([]ForeignKey, 0)
	positions := map[int]int{}
	for rows.Next() {
		var (
			id                  int
			referredTable, from string
		)
		if err := rows.Scan(&id, &referredTable, &from); err != nil {
			return nil, fmt.Errorf("scan foreign key for %q: %w", table, err)
		}
		position, ok := positions[id]
		if !ok {
			position = len(foreignKeys)
			positions[id] = position
			foreignKeys = append(foreignKeys, ForeignKey{ReferredTable: referredTable})
		}
		foreignKeys[position].ConstrainedColumns = append(foreignKeys[position].ConstrainedColumns, from)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys for %q: %w", table, err)
	}
	return foreignKeys, nil
}

func formatType(dataType string, maxLength, precision, scale sql.NullInt64) string {
	typeName := strings.ToUpper(strings.TrimSpace(dataType))
	switch {
	case maxLength.Valid && maxLength.Int64 > 0:
		return fmt.Sprintf("%s(%d)", typeName, maxLength.Int64)
	case (typeName == "NUMERIC" || typeName == "DECIMAL") && precision.Valid:
		if scale.Valid {
			return fmt.Sprintf("%s(%d, %d)", typeName, precision.Int64, scale.Int64)
		}
		return fmt.Sprintf("%s(%d)", typeName, precision.Int64)
	default:
		return typeName
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
