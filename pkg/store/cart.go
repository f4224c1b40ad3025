package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Cart actions reported by AddToCart.
const (
	CartActionAdded   = "added"
	CartActionUpdated = "updated"
)

// AddToCart adds a product to the user's cart under the given session.
// A valid, active, non-expired session is required. Repeat adds for the same
// SKU accumulate quantity on the existing line; the unit price is captured at
// first insert and not re-fetched on update.
func (s *Store) AddToCart(ctx context.Context, userID, sku string, quantity int, notes, sessionID string) (*CartItem, string, error) {
	if quantity <= 0 {
		return nil, "", fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if sessionID == "" {
		return nil, "", ErrSessionNotFound
	}
	if err := s.validateSession(ctx, sessionID); err != nil {
		return nil, "", err
	}

	product, err := s.GetProduct(ctx, sku)
	if err != nil {
		return nil, "", err
	}
	if product.StockQuantity < quantity {
		return nil, "", &InsufficientStockError{SKU: sku, Available: product.StockQuantity}
	}

	existing, err := s.activeCartLine(ctx, userID, sku)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return nil, "", err
	}

	if existing != nil {
		newQuantity := existing.Quantity + quantity
		if _, err := s.db.ExecContext(ctx,
			"UPDATE shopping_carts SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			newQuantity, existing.ID,
		); err != nil {
			return nil, "", fmt.Errorf("failed to update cart line: %w", err)
		}

		existing.Quantity = newQuantity
		existing.TotalPrice = float64(newQuantity) * existing.UnitPrice
		return existing, CartActionUpdated, nil
	}

	item := &CartItem{
		UserID:      userID,
		SKU:         sku,
		ProductName: product.ItemName,
		Brand:       product.Brand,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		TotalPrice:  float64(quantity) * product.Price,
		Notes:       notes,
		SessionID:   sessionID,
		Status:      "active",
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shopping_carts (user_id, sku, product_name, brand, quantity, unit_price, notes, session_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active')`,
		item.UserID, item.SKU, item.ProductName, item.Brand, item.Quantity, item.UnitPrice, item.Notes, item.SessionID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert cart line: %w", err)
	}

	item.ID, _ = res.LastInsertId()
	return item, CartActionAdded, nil
}

// GetCart returns the user's cart lines with the given status plus summary
// aggregates (totals and a per-brand line count).
func (s *Store) GetCart(ctx context.Context, userID, status string) (*CartSummary, error) {
	if status == "" {
		status = "active"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, sku, product_name, brand, quantity, unit_price, notes, COALESCE(session_id, ''), status
		FROM shopping_carts WHERE user_id = ? AND status = ? ORDER BY added_at`,
		userID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	summary := &CartSummary{
		UserID:        userID,
		Items:         []CartItem{},
		BrandsSummary: map[string]int{},
		Status:        status,
	}

	for rows.Next() {
		var item CartItem
		var notes sql.NullString
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.SKU, &item.ProductName, &item.Brand,
			&item.Quantity, &item.UnitPrice, &notes, &item.SessionID, &item.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}

		item.Notes = notes.String
		item.TotalPrice = float64(item.Quantity) * item.UnitPrice

		summary.Items = append(summary.Items, item)
		summary.TotalItems += item.Quantity
		summary.TotalPrice += item.TotalPrice
		summary.BrandsSummary[item.Brand]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary.ItemCount = len(summary.Items)
	return summary, nil
}

// RemoveFromCart marks the user's active line for the SKU as removed.
func (s *Store) RemoveFromCart(ctx context.Context, userID, sku string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shopping_carts SET status = 'removed', updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND sku = ? AND status = 'active'`,
		userID, sku,
	)
	if err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrItemNotFound
	}

	return nil
}

// UpdateCartQuantity sets the quantity of the user's active line for the SKU.
// A quantity of zero or less removes the line instead.
func (s *Store) UpdateCartQuantity(ctx context.Context, userID, sku string, newQuantity int) (*CartItem, error) {
	if newQuantity <= 0 {
		if err := s.RemoveFromCart(ctx, userID, sku); err != nil {
			return nil, err
		}
		return nil, nil
	}

	item, err := s.activeCartLine(ctx, userID, sku)
	if err != nil {
		return nil, err
	}

	product, err := s.GetProduct(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product.StockQuantity < newQuantity {
		return nil, &InsufficientStockError{SKU: sku, Available: product.StockQuantity}
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE shopping_carts SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		newQuantity, item.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update cart quantity: %w", err)
	}

	item.Quantity = newQuantity
	item.TotalPrice = float64(newQuantity) * item.UnitPrice
	return item, nil
}

func (s *Store) activeCartLine(ctx context.Context, userID, sku string) (*CartItem, error) {
	var item CartItem
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, sku, product_name, brand, quantity, unit_price, notes, COALESCE(session_id, ''), status
		FROM shopping_carts WHERE user_id = ? AND sku = ? AND status = 'active'`,
		userID, sku,
	).Scan(
		&item.ID, &item.UserID, &item.SKU, &item.ProductName, &item.Brand,
		&item.Quantity, &item.UnitPrice, &notes, &item.SessionID, &item.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cart line: %w", err)
	}

	item.Notes = notes.String
	item.TotalPrice = float64(item.Quantity) * item.UnitPrice
	return &item, nil
}
