package shop

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
)

type Dataset struct {
	Customers []Customer
	Products  []Product
	Orders    []OrderPlan
}

// OrderPlan references customers and products by their index in the Dataset.
type OrderPlan struct {
	CustomerIndex int
	Status        string
	Lines         []LinePlan
}

type LinePlan struct {
	ProductIndex int
	Quantity     int
}

type SeedOptions struct {
	Customers int
	Products  int
	Orders    int
	Seed      int64
}

func DefaultSeedOptions() SeedOptions {
	return SeedOptions{Customers: 50, Products: 20, Orders: 200, Seed: 42}
}

var (
	firstNames = []string{"Ana", "Luis", "María", "Carlos", "Lucía", "Javier", "Sofía", "Diego", "Elena", "Pablo"}
	lastNames  = []string{"García", "Martínez", "López", "Sánchez", "Pérez", "Gómez", "Díaz", "Ruiz"}
	categories = map[string][]string{
		"Electrónica": {"Auriculares", "Teclado", "Ratón", "Monitor", "Altavoz"},
		"Hogar":       {"Lámpara", "Cafetera", "Sartén", "Cojín"},
		"Deportes":    {"Balón", "Raqueta", "Esterilla", "Mochila"},
		"Libros":      {"Novela", "Cuaderno", "Atlas"},
	}
	categoryOrder = []string{"Electrónica", "Hogar", "Deportes", "Libros"}
)

// Generate builds a deterministic dataset for opts.Seed.
func Generate(opts SeedOptions) (Dataset, error) {
	if opts.Customers <= 0 || opts.Products <= 0 {
		return Dataset{}, fmt.Errorf("customers and products must be > 0")
	}
	if opts.Orders < 0 {
		return Dataset{}, fmt.Errorf("orders must be >= 0")
	}
	rnd := rand.New(rand.NewSource(opts.Seed))

	data := Dataset{
		Customers: make([]Customer, 0, opts.Customers),
		Products:  make([]Product, 0, opts.Products),
		Orders:    make([]OrderPlan, 0, opts.Orders),
	}
	for i := 1; i <= opts.Customers; i++ {
		first := pickOne(rnd, firstNames)
		last := pickOne(rnd, lastNames)
		data.Customers = append(data.Customers, Customer{
			Name:  first + " " + last,
			Email: fmt.Sprintf("cliente%04d@tienda.example", i),
		})
	}
	for i := 1; i <= opts.Products; i++ {
		category := pickOne(rnd, categoryOrder)
		data.Products = append(data.Products, Product{
			Name:     fmt.Sprintf("%s %03d", pickOne(rnd, categories[category]), i),
			Price:    round2(2 + rnd.Float64()*248),
			Category: category,
		})
	}
	for i := 0; i < opts.Orders; i++ {
		plan := OrderPlan{
			CustomerIndex: rnd.Intn(opts.Customers),
			Status:        pickStatus(rnd),
		}
		lineCount := 1 + rnd.Intn(4)
		for j := 0; j < lineCount; j++ {
			plan.Lines = append(plan.Lines, LinePlan{
				ProductIndex: rnd.Intn(opts.Products),
				Quantity:     1 + rnd.Intn(5),
			})
		}
		data.Orders = append(data.Orders, plan)
	}
	return data, nil
}

// Seed inserts data in one transaction. With reset the existing rows are
// deleted first.
func (r *Repository) Seed(ctx context.Context, data Dataset, reset bool) (Counts, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if reset {
			if err := r.reset(ctx, tx); err != nil {
				return err
			}
		}

		customerIDs := make([]int64, len(data.Customers))
		for i, customer := range data.Customers {
			created, err := r.createCustomer(ctx, tx, customer.Name, customer.Email)
			if err != nil {
				return err
			}
			customerIDs[i] = created.ID
		}
		products := make([]Product, len(data.Products))
		for i, product := range data.Products {
			created, err := r.createProduct(ctx, tx, product)
			if err != nil {
				return err
			}
			products[i] = created
		}
		for i, plan := range data.Orders {
			if plan.CustomerIndex < 0 || plan.CustomerIndex >= len(customerIDs) {
				return fmt.Errorf("order %d references unknown customer %d", i, plan.CustomerIndex)
			}
			lines := make([]OrderLine, 0, len(plan.Lines))
			for _, line := range plan.Lines {
				if line.ProductIndex < 0 || line.ProductIndex >= len(products) {
					return fmt.Errorf("order %d references unknown product %d", i, line.ProductIndex)
				}
				product := products[line.ProductIndex]
				lines = append(lines, OrderLine{ProductID: product.ID, Quantity: line.Quantity, UnitPrice: product.Price})
			}
			if _, err := r.createOrder(ctx, tx, customerIDs[plan.CustomerIndex], plan.Status, lines); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Counts{}, err
	}
	return r.Counts(ctx)
}

func pickStatus(r *rand.Rand) string {
	p := r.Intn(100)
	switch {
	case p < 50:
		return "entregado"
	case p < 75:
		return "enviado"
	case p < 92:
		return "pendiente"
	default:
		return "cancelado"
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
