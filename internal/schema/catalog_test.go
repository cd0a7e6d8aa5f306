package schema

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"

	"github.com/sqlchat/sqlchat/internal/database"
)

func TestInformationSchemaCatalogTables(t *testing.T) {
	db, mock := newSQLMock(t)
	catalog, err := NewCatalog(db, database.DialectPostgres, "")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("clientes").AddRow("detalles_pedido"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'PRIMARY KEY'`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("clientes", "cliente_id").
			AddRow("detalles_pedido", "detalle_id"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "character_maximum_length", "numeric_precision", "numeric_scale"}).
			AddRow("clientes", "cliente_id", "integer", "NO", nil, int64(32), int64(0)).
			AddRow("clientes", "email", "character varying", "NO", int64(100), nil, nil).
			AddRow("detalles_pedido", "detalle_id", "integer", "NO", nil, int64(32), int64(0)).
			AddRow("detalles_pedido", "pedido_id", "integer", "YES", nil, int64(32), int64(0)).
			AddRow("detalles_pedido", "producto_id", "integer", "YES", nil, int64(32), int64(0)).
			AddRow("detalles_pedido", "precio_unitario", "numeric", "NO", nil, int64(10), int64(2)).
			AddRow("pg_view_only", "x", "integer", "YES", nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'FOREIGN KEY'`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "table_schema", "table_name"}).
			AddRow("detalles_pedido", "detalles_pedido_pedido_id_fkey", "pedido_id", "public", "pedidos").
			AddRow("detalles_pedido", "detalles_pedido_producto_id_fkey", "producto_id", "public", "productos"))

	tables, err := catalog.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	clientes := tables[0]
	if clientes.Name != "clientes" || len(clientes.Columns) != 2 {
		t.Fatalf("clientes = %#v", clientes)
	}
	if !clientes.Columns[0].PrimaryKey || clientes.Columns[0].Nullable {
		t.Fatalf("cliente_id = %#v", clientes.Columns[0])
	}
	if clientes.Columns[1].Type != "CHARACTER VARYING(100)" {
		t.Fatalf("email type = %q", clientes.Columns[1].Type)
	}

	detalles := tables[1]
	if got := detalles.Columns[3].Type; got != "NUMERIC(10, 2)" {
		t.Fatalf("precio_unitario type = %q", got)
	}
	if got := detalles.Columns[0].Type; got != "INTEGER" {
		t.Fatalf("detalle_id type = %q", got)
	}
	if len(detalles.ForeignKeys) != 2 {
		t.Fatalf("foreign keys = %#v", detalles.ForeignKeys)
	}
	if detalles.ForeignKeys[1].ReferredTable != "productos" || detalles.ForeignKeys[1].ConstrainedColumns[0] != "producto_id" {
		t.Fatalf("second foreign key = %#v", detalles.ForeignKeys[1])
	}
	assertSQLMock(t, mock)
}

func TestInformationSchemaCatalogCollapsesCompositeForeignKey(t *testing.T) {
	db, mock := newSQLMock(t)
	catalog := NewInformationSchemaCatalog(db, "main")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables`)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("lineas"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'PRIMARY KEY'`)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "character_maximum_length", "numeric_precision", "numeric_scale"}).
			AddRow("lineas", "pedido_id", "INTEGER", "NO", nil, nil, nil).
			AddRow("lineas", "linea", "INTEGER", "NO", nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'FOREIGN KEY'`)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "table_schema", "table_name"}).
			AddRow("lineas", "fk_pedido", "pedido_id", "main", "pedidos").
			AddRow("lineas", "fk_pedido", "pedido_id", "main", "pedidos").
			AddRow("lineas", "fk_pedido", "linea", "main", "pedidos").
			AddRow("lineas", "fk_pedido", "linea", "main", "pedidos"))

	tables, err := catalog.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	fks := tables[0].ForeignKeys
	if len(fks) != 1 {
		t.Fatalf("foreign keys = %#v", fks)
	}
	if len(fks[0].ConstrainedColumns) != 2 || fks[0].ConstrainedColumns[0] != "pedido_id" || fks[0].ConstrainedColumns[1] != "linea" {
		t.Fatalf("constrained columns = %#v", fks[0].ConstrainedColumns)
	}
	assertSQLMock(t, mock)
}

func TestInformationSchemaCatalogQualifiesCrossSchemaForeignKey(t *testing.T) {
	db, mock := newSQLMock(t)
	catalog := NewInformationSchemaCatalog(db, "ventas")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables`)).
		WithArgs("ventas").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("pedidos"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'PRIMARY KEY'`)).
		WithArgs("ventas").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WithArgs("ventas").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "character_maximum_length", "numeric_precision", "numeric_scale"}).
			AddRow("pedidos", "cliente_id", "integer", "NO", nil, int64(32), int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta(`AND ccu.constraint_schema = tc.constraint_schema`)).
		WithArgs("ventas").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "table_schema", "table_name"}).
			AddRow("pedidos", "pedidos_cliente_id_fkey", "cliente_id", "crm", "clientes"))

	tables, err := catalog.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	fks := tables[0].ForeignKeys
	if len(fks) != 1 || fks[0].ReferredTable != "crm.clientes" {
		t.Fatalf("foreign keys = %#v", fks)
	}
	assertSQLMock(t, mock)
}

func TestInformationSchemaCatalogEmptySchema(t *testing.T) {
	db, mock := newSQLMock(t)
	catalog := NewInformationSchemaCatalog(db, "public")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables`)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))

	_, err := Describe(context.Background(), catalog)
	if err != ErrNoTables {
		t.Fatalf("Describe() error = %v, want ErrNoTables", err)
	}
	assertSQLMock(t, mock)
}

func TestSQLiteCatalogTables(t *testing.T) {
	db := openSQLite(t)
	for _, stmt := range []string{
		`CREATE TABLE clientes (cliente_id INTEGER PRIMARY KEY, nombre VARCHAR(100) NOT NULL, email VARCHAR(100))`,
		`CREATE TABLE pedidos (pedido_id INTEGER PRIMARY KEY, cliente_id INTEGER REFERENCES clientes(cliente_id), estado VARCHAR(20))`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	catalog, err := NewCatalog(db, database.DialectSQLite, "")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	description, err := Describe(context.Background(), catalog)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(description.Tables) != 2 {
		t.Fatalf("tables = %#v", description.Tables)
	}
	clientes, ok := description.Lookup("clientes")
	if !ok {
		t.Fatal("clientes missing")
	}
	if len(clientes.Columns) != 3 {
		t.Fatalf("clientes columns = %#v", clientes.Columns)
	}
	if !clientes.Columns[0].PrimaryKey || clientes.Columns[0].Nullable {
		t.Fatalf("cliente_id = %#v", clientes.Columns[0])
	}
	if clientes.Columns[1].Type != "VARCHAR(100)" || clientes.Columns[1].Nullable {
		t.Fatalf("nombre = %#v", clientes.Columns[1])
	}
	if !clientes.Columns[2].Nullable {
		t.Fatalf("email = %#v", clientes.Columns[2])
	}

	pedidos, _ := description.Lookup("pedidos")
	if len(pedidos.ForeignKeys) != 1 || pedidos.ForeignKeys[0].ReferredTable != "clientes" {
		t.Fatalf("pedidos foreign keys = %#v", pedidos.ForeignKeys)
	}

	rendered := Render(description)
	if !regexp.MustCompile(`(?m)^- cliente_id → clientes$`).MatchString(rendered) {
		t.Fatalf("rendered schema missing relation:\n%s", rendered)
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
