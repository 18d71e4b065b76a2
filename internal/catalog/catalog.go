package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Product is one sellable item from the supplement catalog.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	InStock  bool    `json:"in_stock"`
}

// Searcher finds catalog products matching a free-text query. Implementations
// must return products sorted by ascending price.
type Searcher interface {
	Search(ctx context.Context, query string, maxPrice *float64, inStockOnly bool) ([]Product, error)
}

type dbQuerier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// PGSearcher searches the products table with case-insensitive substring
// matching over name, brand, and category.
type PGSearcher struct {
	db dbQuerier
}

func NewPGSearcher(db dbQuerier) *PGSearcher {
	return &PGSearcher{db: db}
}

func (s *PGSearcher) Search(ctx context.Context, query string, maxPrice *float64, inStockOnly bool) ([]Product, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(ctx,
		`SELECT id, name, brand, category, price, in_stock
		 FROM products
		 WHERE (name ILIKE $1 OR brand ILIKE $1 OR category ILIKE $1)
		   AND ($2::float8 IS NULL OR price <= $2::float8)
		   AND (in_stock OR NOT $3)
		 ORDER BY price ASC, id ASC`,
		pattern,
		maxPrice,
		inStockOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, 16)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price, &p.InStock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}
	return products, nil
}
