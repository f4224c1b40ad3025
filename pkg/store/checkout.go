package store

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
)

// CheckoutOptions carries the optional order fields.
type CheckoutOptions struct {
	DeliveryDate        *time.Time
	SpecialInstructions string
}

// Checkout converts the user's active cart lines into an order. Order
// creation, order items, cart status transitions and stock decrements all
// happen inside one transaction: a failure at any step leaves no partial
// order behind. Stock is clamped at zero.
func (s *Store) Checkout(ctx context.Context, userID, shippingAddress string, opts CheckoutOptions) (*OrderReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sku, product_name, brand, quantity, unit_price
		FROM shopping_carts WHERE user_id = ? AND status = 'active'`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	type line struct {
		id          int64
		sku         string
		productName string
		brand       string
		quantity    int
		unitPrice   float64
	}

	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.id, &l.sku, &l.productName, &l.brand, &l.quantity, &l.unitPrice); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	var total float64
	for _, l := range lines {
		total += l.unitPrice * float64(l.quantity)
	}

	// The timestamp alone collides when two checkouts land in the same
	// millisecond; the random suffix keeps order numbers unique.
	suffix, err := gonanoid.New(6)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order number: %w", err)
	}
	orderNumber := fmt.Sprintf("ORD-%s-%d-%s", userID, time.Now().UnixMilli(), suffix)

	var deliveryDate any
	if opts.DeliveryDate != nil {
		deliveryDate = opts.DeliveryDate.Format("2006-01-02")
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, order_number, total_amount, order_status, shipping_address, delivery_date, special_instructions)
		VALUES (?, ?, ?, 'pending', ?, ?, ?)`,
		userID, orderNumber, total, shippingAddress, deliveryDate, opts.SpecialInstructions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read order id: %w", err)
	}

	for _, l := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, sku, product_name, brand, quantity, unit_price, total_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, l.sku, l.productName, l.brand, l.quantity, l.unitPrice, l.unitPrice*float64(l.quantity),
		); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE shopping_carts SET status = 'purchased', order_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			orderID, l.id,
		); err != nil {
			return nil, fmt.Errorf("failed to mark cart line purchased: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = MAX(0, stock_quantity - ?), updated_at = CURRENT_TIMESTAMP
			WHERE sku = ?`,
			l.quantity, l.sku,
		); err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	observability.RecordOrderPlaced()
	s.logger.Info().
		Str("user_id", userID).
		Str("order_number", orderNumber).
		Float64("total", total).
		Int("items", len(lines)).
		Msg("Checkout completed")

	return &OrderReceipt{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		TotalAmount: total,
		ItemCount:   len(lines),
	}, nil
}

// GetOrderItems fetches the items of an order. Used by order history and tests.
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, sku, product_name, brand, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ?`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKU, &it.ProductName, &it.Brand, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

// CountOrders returns the number of orders for a user.
func (s *Store) CountOrders(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
