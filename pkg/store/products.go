package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const productColumns = `id, item_name, sku, brand, quantity, unit, category,
	calories_per_100g, protein_g, fat_g, carbs_g, sugar_g, allergens,
	price, stock_quantity, is_active`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var (
		p         Product
		calories  sql.NullInt64
		protein   sql.NullFloat64
		fat       sql.NullFloat64
		carbs     sql.NullFloat64
		sugar     sql.NullFloat64
		allergens sql.NullString
	)

	err := row.Scan(
		&p.ID, &p.ItemName, &p.SKU, &p.Brand, &p.Quantity, &p.Unit, &p.Category,
		&calories, &protein, &fat, &carbs, &sugar, &allergens,
		&p.Price, &p.StockQuantity, &p.IsActive,
	)
	if err != nil {
		return nil, err
	}

	p.CaloriesPer100g = int(calories.Int64)
	p.ProteinG = protein.Float64
	p.FatG = fat.Float64
	p.CarbsG = carbs.Float64
	p.SugarG = sugar.Float64
	p.Allergens = splitAllergens(allergens.String)

	return &p, nil
}

// GetProduct fetches a single product by SKU.
func (s *Store) GetProduct(ctx context.Context, sku string) (*Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE sku = ?", productColumns)

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	return p, nil
}

// FindProducts searches active products whose name contains the given term,
// optionally constrained to a category.
func (s *Store) FindProducts(ctx context.Context, name, category string) ([]Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE is_active = 1 AND item_name LIKE ?", productColumns)
	args := []any{"%" + name + "%"}

	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}

	return s.queryProducts(ctx, query, args...)
}

// FindAlternatives searches in-stock active products matching the term or
// category, excluding the given SKUs, bounded to the given limit.
func (s *Store) FindAlternatives(ctx context.Context, name string, excludeSKUs []string, category string, limit int) ([]Product, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM products WHERE is_active = 1 AND stock_quantity > 0", productColumns)

	args := []any{}
	if category != "" {
		sb.WriteString(" AND (item_name LIKE ? OR category = ?)")
		args = append(args, "%"+name+"%", category)
	} else {
		sb.WriteString(" AND item_name LIKE ?")
		args = append(args, "%"+name+"%")
	}

	if len(excludeSKUs) > 0 {
		sb.WriteString(" AND sku NOT IN (" + placeholders(len(excludeSKUs)) + ")")
		for _, sku := range excludeSKUs {
			args = append(args, sku)
		}
	}

	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	return s.queryProducts(ctx, sb.String(), args...)
}

// GetProductsBySKUs fetches active products for the given SKUs, sorted by
// ascending price.
func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) ([]Product, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products WHERE is_active = 1 AND sku IN (%s) ORDER BY price ASC",
		productColumns, placeholders(len(skus)),
	)
	args := make([]any, len(skus))
	for i, sku := range skus {
		args[i] = sku
	}

	return s.queryProducts(ctx, query, args...)
}

// SearchProducts is the free-text search behind the product search endpoint.
// An empty query yields an empty result set.
func (s *Store) SearchProducts(ctx context.Context, q string, limit int) ([]Product, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products WHERE is_active = 1 AND (item_name LIKE ? OR brand LIKE ? OR category LIKE ?) LIMIT ?",
		productColumns,
	)
	like := "%" + q + "%"

	return s.queryProducts(ctx, query, like, like, like, limit)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

// InsertProduct adds a product to the catalogue. Used by seeding and tests.
func (s *Store) InsertProduct(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO products (item_name, sku, brand, quantity, unit, category,
			calories_per_100g, protein_g, fat_g, carbs_g, sugar_g, allergens,
			price, stock_quantity, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ItemName, p.SKU, p.Brand, p.Quantity, p.Unit, p.Category,
		p.CaloriesPer100g, p.ProteinG, p.FatG, p.CarbsG, p.SugarG,
		strings.Join(p.Allergens, ","), p.Price, p.StockQuantity, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	p.ID, _ = res.LastInsertId()
	return nil
}

// SetStock overrides a product's stock level.
func (s *Store) SetStock(ctx context.Context, sku string, stock int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET stock_quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE sku = ?",
		stock, sku,
	)
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
