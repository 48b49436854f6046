package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Catalog resolves selling prices from the product tables. A variant price
// overrides the product price when present.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog constructs Catalog.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// UnitPrice returns the current price of the product or variant behind a
// stock unit, in minor units.
func (c *Catalog) UnitPrice(ctx context.Context, unitID int64) (shared.Money, error) {
	var price int64
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(v.price, p.price)
		FROM stock_units u
		JOIN products p ON p.id = u.product_id
		LEFT JOIN product_variants v ON v.id = u.variant_id
		WHERE u.id = $1`, unitID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup unit price: %w", err)
	}
	return shared.Money(price), nil
}
