package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/database"
)

var ErrNotFound = errors.New("not found")

type Customer struct {
	ID           int64     `json:"cliente_id"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	RegisteredOn time.Time `json:"fecha_registro"`
}

type Product struct {
	ID       int64   `json:"producto_id"`
	Name     string  `json:"nombre"`
	Price    float64 `json:"precio"`
	Category string  `json:"categoria,omitempty"`
}

type OrderLine struct {
	ProductID int64
	Quantity  int
	UnitPrice float64
}

// OrderSummary is one order of a customer with its lines folded into totals.
type OrderSummary struct {
	OrderID   int64     `json:"pedido_id"`
	OrderedOn time.Time `json:"fecha_pedido"`
	Status    string    `json:"estado"`
	Lines     int64     `json:"lineas"`
	Total     float64   `json:"total"`
}

type Counts struct {
	Customers int64 `json:"clientes"`
	Products  int64 `json:"productos"`
	Orders    int64 `json:"pedidos"`
	Lines     int64 `json:"detalles_pedido"`
}

// Repository works on the demo store tables. Relationships between the
// tables are expressed as explicit joins and ordered deletes.
type Repository struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewRepository(db *sql.DB, dialect database.Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) CreateCustomer(ctx context.Context, name, email string) (Customer, error) {
	return r.createCustomer(ctx, r.db, name, email)
}

func (r *Repository) createCustomer(ctx context.Context, q execQuerier, name, email string) (Customer, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return Customer{}, fmt.Errorf("customer name and email are required")
	}
	var (
		customer   = Customer{Name: name, Email: email}
		registered any
	)
	err := q.QueryRowContext(ctx, r.rebind(`
INSERT INTO clientes (nombre, email)
VALUES ($1, $2)
RETURNING cliente_id, fecha_registro`), name, email).Scan(&customer.ID, &registered)
	if err != nil {
		return Customer{}, fmt.Errorf("insert cliente %q: %w", email, err)
	}
	if customer.RegisteredOn, err = asDate(registered); err != nil {
		return Customer{}, fmt.Errorf("parse fecha_registro: %w", err)
	}
	return customer, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	return r.createProduct(ctx, r.db, product)
}

func (r *Repository) createProduct(ctx context.Context, q execQuerier, product Product) (Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return Product{}, fmt.Errorf("product name is required")
	}
	if product.Price < 0 {
		return Product{}, fmt.Errorf("product price must be >= 0")
	}
	err := q.QueryRowContext(ctx, r.rebind(`
INSERT INTO productos (nombre, precio, categoria)
VALUES ($1, $2, $3)
RETURNING producto_id`), product.Name, product.Price, nullableString(product.Category)).Scan(&product.ID)
	if err != nil {
		return Product{}, fmt.Errorf("insert producto %q: %w", product.Name, err)
	}
	return product, nil
}

// CreateOrder inserts an order and its lines in one transaction.
func (r *Repository) CreateOrder(ctx context.Context, customerID int64, status string, lines []OrderLine) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	orderID, err := r.createOrder(ctx, tx, customerID, status, lines)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order tx: %w", err)
	}
	return orderID, nil
}

func (r *Repository) createOrder(ctx context.Context, q execQuerier, customerID int64, status string, lines []OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("order requires at least one line")
	}
	if strings.TrimSpace(status) == "" {
		status = "pendiente"
	}

	var orderID int64
	err := q.QueryRowContext(ctx, r.rebind(`
INSERT INTO pedidos (cliente_id, estado)
VALUES ($1, $2)
RETURNING pedido_id`), customerID, status).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert pedido for cliente %d: %w", customerID, err)
	}

	insertLine := r.rebind(`
INSERT INTO detalles_pedido (pedido_id, producto_id, cantidad, precio_unitario)
VALUES ($1, $2, $3, $4)`)
	for _, line := range lines {
		if line.Quantity <= 0 {
			return 0, fmt.Errorf("line quantity must be > 0 for producto %d", line.ProductID)
		}
		if _, err := q.ExecContext(ctx, insertLine, orderID, line.ProductID, line.Quantity, line.UnitPrice); err != nil {
			return 0, fmt.Errorf("insert detalle for pedido %d: %w", orderID, err)
		}
	}
	return orderID, nil
}

func (r *Repository) ListCustomerOrders(ctx context.Context, customerID int64) ([]OrderSummary, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
SELECT p.pedido_id, p.fecha_pedido, p.estado,
	COUNT(d.detalle_id),
	COALESCE(SUM(d.cantidad * d.precio_unitario), 0)
FROM pedidos p
LEFT JOIN detalles_pedido d ON d.pedido_id = p.pedido_id
WHERE p.cliente_id = $1
GROUP BY p.pedido_id, p.fecha_pedido, p.estado
ORDER BY p.fecha_pedido ASC, p.pedido_id ASC`), customerID)
	if err != nil {
		return nil, fmt.Errorf("list pedidos for cliente %d: %w", customerID, err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]OrderSummary, 0)
	for rows.Next() {
		var (
			order     OrderSummary
			orderedOn any
			status    sql.NullString
		)
		if err := rows.Scan(&order.OrderID, &orderedOn, &status, &order.Lines, &order.Total); err != nil {
			return nil, fmt.Errorf("scan pedido: %w", err)
		}
		if order.OrderedOn, err = asDate(orderedOn); err != nil {
			return nil, fmt.Errorf("parse fecha_pedido: %w", err)
		}
		order.Status = status.String
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pedidos: %w", err)
	}
	return orders, nil
}

// DeleteOrder removes the order lines before the order itself.
func (r *Repository) DeleteOrder(ctx context.Context, orderID int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM detalles_pedido WHERE pedido_id = $1`), orderID); err != nil {
			return fmt.Errorf("delete detalles for pedido %d: %w", orderID, err)
		}
		result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM pedidos WHERE pedido_id = $1`), orderID)
		if err != nil {
			return fmt.Errorf("delete pedido %d: %w", orderID, err)
		}
		return requireAffected(result, "pedido", orderID)
	})
}

// DeleteCustomer removes a customer together with its orders and their lines.
func (r *Repository) DeleteCustomer(ctx context.Context, customerID int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`
DELETE FROM detalles_pedido
WHERE pedido_id IN (SELECT pedido_id FROM pedidos WHERE cliente_id = $1)`), customerID); err != nil {
			return fmt.Errorf("delete detalles for cliente %d: %w", customerID, err)
		}
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM pedidos WHERE cliente_id = $1`), customerID); err != nil {
			return fmt.Errorf("delete pedidos for cliente %d: %w", customerID, err)
		}
		result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM clientes WHERE cliente_id = $1`), customerID)
		if err != nil {
			return fmt.Errorf("delete cliente %d: %w", customerID, err)
		}
		return requireAffected(result, "cliente", customerID)
	})
}

// Reset empties every store table, dependents first.
func (r *Repository) Reset(ctx context.Context) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return r.reset(ctx, tx)
	})
}

func (r *Repository) reset(ctx context.Context, q execQuerier) error {
	for _, table := range []string{"detalles_pedido", "pedidos", "productos", "clientes"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := r.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM clientes),
	(SELECT COUNT(*) FROM productos),
	(SELECT COUNT(*) FROM pedidos),
	(SELECT COUNT(*) FROM detalles_pedido)`).Scan(&counts.Customers, &counts.Products, &counts.Orders, &counts.Lines)
	if err != nil {
		return Counts{}, fmt.Errorf("count store rows: %w", err)
	}
	return counts, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\$[0-9]+`)

// rebind rewrites $N markers for the repository dialect.
func (r *Repository) rebind(query string) string {
	if r.dialect != database.DialectSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllStringFunc(query, func(marker string) string {
		n, _ := strconv.Atoi(marker[1:])
		return r.dialect.Placeholder(n)
	})
}

func requireAffected(result sql.Result, what string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d rows affected: %w", what, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func nullableString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

// asDate accepts the shapes drivers return for DATE columns.
func asDate(value any) (time.Time, error) {
	switch typed := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return typed.UTC(), nil
	case []byte:
		return parseDate(string(typed))
	case string:
		return parseDate(typed)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", value)
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len(time.DateOnly) {
		if parsed, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
