package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func insertTestProduct(t *testing.T, s *Store, sku string, price float64, stock int) {
	t.Helper()

	require.NoError(t, s.InsertProduct(context.Background(), &Product{
		ItemName:      "Pasta",
		SKU:           sku,
		Brand:         "Barilla",
		Quantity:      1,
		Unit:          "500g",
		Category:      "grains",
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
	}))
}

func newTestSession(t *testing.T, s *Store, userID string) *CartSession {
	t.Helper()

	session, err := s.CreateSession(context.Background(), userID, "recipe_based", 24*time.Hour)
	require.NoError(t, err)
	return session
}

func TestAddToCart(t *testing.T) {
	ctx := context.Background()

	t.Run("should accumulate quantity across repeated adds", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 100)
		session := newTestSession(t, s, "u1")

		for _, q := range []int{1, 2, 3} {
			_, _, err := s.AddToCart(ctx, "u1", "SKU-1", q, "", session.SessionID)
			require.NoError(t, err)
		}

		line, err := s.activeCartLine(ctx, "u1", "SKU-1")
		require.NoError(t, err)
		assert.Equal(t, 6, line.Quantity)
		assert.InDelta(t, 6*2.99, line.TotalPrice, 0.001)
	})

	t.Run("should keep unit price captured at first insert", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 100)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-1", 1, "", session.SessionID)
		require.NoError(t, err)

		// Reprice the product; the cart line must not pick it up.
		_, err = s.db.Exec("UPDATE products SET price = 9.99 WHERE sku = 'SKU-1'")
		require.NoError(t, err)

		line, _, err := s.AddToCart(ctx, "u1", "SKU-1", 1, "", session.SessionID)
		require.NoError(t, err)
		assert.InDelta(t, 2.99, line.UnitPrice, 0.001)
		assert.InDelta(t, 2*2.99, line.TotalPrice, 0.001)
	})

	t.Run("should report action added then updated", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 100)
		session := newTestSession(t, s, "u1")

		_, action, err := s.AddToCart(ctx, "u1", "SKU-1", 1, "", session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, CartActionAdded, action)

		_, action, err = s.AddToCart(ctx, "u1", "SKU-1", 1, "", session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, CartActionUpdated, action)
	})

	t.Run("should reject quantity exceeding stock and leave state unchanged", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 3)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-1", 5, "", session.SessionID)

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 3, stockErr.Available)

		cart, err := s.GetCart(ctx, "u1", "active")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)

		p, err := s.GetProduct(ctx, "SKU-1")
		require.NoError(t, err)
		assert.Equal(t, 3, p.StockQuantity)
	})

	t.Run("should reject unknown product", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "NOPE", 1, "", session.SessionID)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("should require a session", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 100)

		_, _, err := s.AddToCart(ctx, "u1", "SKU-1", 1, "", "")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("should reject expired session", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-1", 2.99, 100)

		session, err := s.CreateSession(ctx, "u1", "recipe_based", -time.Hour)
		require.NoError(t, err)

		_, _, err = s.AddToCart(ctx, "u1", "SKU-1", 1, "", session.SessionID)
		assert.ErrorIs(t, err, ErrSessionInactive)
	})
}

func TestUpdateCartQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("should be equivalent to remove at zero quantity", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 100)
		insertTestProduct(t, s, "SKU-B", 3.99, 100)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 2, "", session.SessionID)
		require.NoError(t, err)
		_, _, err = s.AddToCart(ctx, "u1", "SKU-B", 2, "", session.SessionID)
		require.NoError(t, err)

		_, err = s.UpdateCartQuantity(ctx, "u1", "SKU-A", 0)
		require.NoError(t, err)
		require.NoError(t, s.RemoveFromCart(ctx, "u1", "SKU-B"))

		for _, sku := range []string{"SKU-A", "SKU-B"} {
			_, err := s.activeCartLine(ctx, "u1", sku)
			assert.ErrorIs(t, err, ErrItemNotFound)
		}

		removed, err := s.GetCart(ctx, "u1", "removed")
		require.NoError(t, err)
		assert.Len(t, removed.Items, 2)
	})

	t.Run("should update quantity within stock", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 1, "", session.SessionID)
		require.NoError(t, err)

		line, err := s.UpdateCartQuantity(ctx, "u1", "SKU-A", 7)
		require.NoError(t, err)
		assert.Equal(t, 7, line.Quantity)
	})

	t.Run("should reject quantity exceeding stock", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 5)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 1, "", session.SessionID)
		require.NoError(t, err)

		_, err = s.UpdateCartQuantity(ctx, "u1", "SKU-A", 6)
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 5, stockErr.Available)
	})

	t.Run("should fail for item not in cart", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 5)

		_, err := s.UpdateCartQuantity(ctx, "u1", "SKU-A", 2)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

func TestGetCart(t *testing.T) {
	ctx := context.Background()

	t.Run("should aggregate totals and brands", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.InsertProduct(ctx, &Product{
			ItemName: "Pasta", SKU: "SKU-A", Brand: "Barilla", Quantity: 1, Unit: "500g",
			Category: "grains", Price: 2.99, StockQuantity: 100, IsActive: true,
		}))
		require.NoError(t, s.InsertProduct(ctx, &Product{
			ItemName: "Cheese", SKU: "SKU-B", Brand: "Kraft", Quantity: 1, Unit: "200g",
			Category: "dairy", Price: 4.99, StockQuantity: 100, IsActive: true,
		}))
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 2, "", session.SessionID)
		require.NoError(t, err)
		_, _, err = s.AddToCart(ctx, "u1", "SKU-B", 1, "extra", session.SessionID)
		require.NoError(t, err)

		cart, err := s.GetCart(ctx, "u1", "active")
		require.NoError(t, err)
		assert.Equal(t, 2, cart.ItemCount)
		assert.Equal(t, 3, cart.TotalItems)
		assert.InDelta(t, 2*2.99+4.99, cart.TotalPrice, 0.001)
		assert.Equal(t, map[string]int{"Barilla": 1, "Kraft": 1}, cart.BrandsSummary)
	})

	t.Run("should return empty cart for unknown user", func(t *testing.T) {
		s := newTestStore(t)

		cart, err := s.GetCart(ctx, "nobody", "active")
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.Zero(t, cart.TotalPrice)
	})
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail on empty cart with no writes", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{})
		assert.ErrorIs(t, err, ErrCartEmpty)

		n, err := s.CountOrders(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("should snapshot lines, mark purchased and decrement stock", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)
		insertTestProduct(t, s, "SKU-B", 4.99, 10)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 2, "", session.SessionID)
		require.NoError(t, err)
		_, _, err = s.AddToCart(ctx, "u1", "SKU-B", 3, "", session.SessionID)
		require.NoError(t, err)

		receipt, err := s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 2*2.99+3*4.99, receipt.TotalAmount, 0.001)
		assert.Equal(t, 2, receipt.ItemCount)
		assert.Contains(t, receipt.OrderNumber, "ORD-u1-")

		items, err := s.GetOrderItems(ctx, receipt.OrderID)
		require.NoError(t, err)
		assert.Len(t, items, 2)

		active, err := s.GetCart(ctx, "u1", "active")
		require.NoError(t, err)
		assert.Empty(t, active.Items)

		purchased, err := s.GetCart(ctx, "u1", "purchased")
		require.NoError(t, err)
		assert.Len(t, purchased.Items, 2)

		pa, err := s.GetProduct(ctx, "SKU-A")
		require.NoError(t, err)
		assert.Equal(t, 8, pa.StockQuantity)
		pb, err := s.GetProduct(ctx, "SKU-B")
		require.NoError(t, err)
		assert.Equal(t, 7, pb.StockQuantity)
	})

	t.Run("should clamp stock at zero", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 5)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 5, "", session.SessionID)
		require.NoError(t, err)

		// Stock shrinks between add and checkout.
		require.NoError(t, s.SetStock(ctx, "SKU-A", 3))

		_, err = s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{})
		require.NoError(t, err)

		p, err := s.GetProduct(ctx, "SKU-A")
		require.NoError(t, err)
		assert.Equal(t, 0, p.StockQuantity)
	})

	t.Run("should issue distinct order numbers for back-to-back checkouts", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 1, "", session.SessionID)
		require.NoError(t, err)
		first, err := s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{})
		require.NoError(t, err)

		_, _, err = s.AddToCart(ctx, "u1", "SKU-A", 1, "", session.SessionID)
		require.NoError(t, err)
		second, err := s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{})
		require.NoError(t, err)

		assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
	})

	t.Run("should record delivery date and instructions", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)
		session := newTestSession(t, s, "u1")

		_, _, err := s.AddToCart(ctx, "u1", "SKU-A", 1, "", session.SessionID)
		require.NoError(t, err)

		date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
		receipt, err := s.Checkout(ctx, "u1", "1 Main St", CheckoutOptions{
			DeliveryDate:        &date,
			SpecialInstructions: "leave at door",
		})
		require.NoError(t, err)

		var storedDate, storedNotes string
		err = s.db.QueryRow(
			"SELECT delivery_date, special_instructions FROM orders WHERE id = ?", receipt.OrderID,
		).Scan(&storedDate, &storedNotes)
		require.NoError(t, err)
		assert.Equal(t, "2026-09-12", storedDate)
		assert.Equal(t, "leave at door", storedNotes)
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("should create sessions with conventional id format", func(t *testing.T) {
		s := newTestStore(t)

		session := newTestSession(t, s, "user123")
		assert.Contains(t, session.SessionID, "session_user123_")
		assert.True(t, session.Active)

		got, err := s.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, session.SessionID, got.SessionID)
	})

	t.Run("should expire only past-due active sessions", func(t *testing.T) {
		s := newTestStore(t)

		expired, err := s.CreateSession(ctx, "u1", "recipe_based", -time.Hour)
		require.NoError(t, err)
		fresh, err := s.CreateSession(ctx, "u2", "recipe_based", time.Hour)
		require.NoError(t, err)

		n, err := s.ExpireSessions(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetSession(ctx, expired.SessionID)
		require.NoError(t, err)
		assert.False(t, got.Active)

		got, err = s.GetSession(ctx, fresh.SessionID)
		require.NoError(t, err)
		assert.True(t, got.Active)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.CreateSession(ctx, "u1", "recipe_based", -time.Hour)
		require.NoError(t, err)

		n, err := s.ExpireSessions(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.ExpireSessions(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("should return not found for unknown session", func(t *testing.T) {
		s := newTestStore(t)

		_, err := s.GetSession(ctx, "session_nobody_0")
		assert.True(t, errors.Is(err, ErrSessionNotFound))
	})
}

func TestProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("should sort sku lookups by ascending price", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-HIGH", 9.99, 10)
		insertTestProduct(t, s, "SKU-LOW", 1.99, 10)
		insertTestProduct(t, s, "SKU-MID", 4.99, 10)

		products, err := s.GetProductsBySKUs(ctx, []string{"SKU-HIGH", "SKU-LOW", "SKU-MID"})
		require.NoError(t, err)
		require.Len(t, products, 3)
		assert.Equal(t, "SKU-LOW", products[0].SKU)
		assert.Equal(t, "SKU-HIGH", products[2].SKU)
	})

	t.Run("should return empty search for blank query", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)

		products, err := s.SearchProducts(ctx, "   ", 10)
		require.NoError(t, err)
		assert.Empty(t, products)
	})

	t.Run("should bound search results", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Seed(ctx)
		require.NoError(t, err)

		products, err := s.SearchProducts(ctx, "a", 10)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(products), 10)
	})

	t.Run("should exclude skus from alternatives", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 10)
		insertTestProduct(t, s, "SKU-B", 3.99, 10)

		alts, err := s.FindAlternatives(ctx, "Pasta", []string{"SKU-A"}, "", 5)
		require.NoError(t, err)
		require.Len(t, alts, 1)
		assert.Equal(t, "SKU-B", alts[0].SKU)
	})

	t.Run("should skip out-of-stock alternatives", func(t *testing.T) {
		s := newTestStore(t)
		insertTestProduct(t, s, "SKU-A", 2.99, 0)
		insertTestProduct(t, s, "SKU-B", 3.99, 10)

		alts, err := s.FindAlternatives(ctx, "Pasta", nil, "", 5)
		require.NoError(t, err)
		require.Len(t, alts, 1)
		assert.Equal(t, "SKU-B", alts[0].SKU)
	})

	t.Run("should parse allergens into a list", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.InsertProduct(ctx, &Product{
			ItemName: "Bread", SKU: "SKU-BREAD", Brand: "Dave's Killer", Quantity: 1, Unit: "500g",
			Category: "bakery", Allergens: []string{"Contains: Gluten", "Nuts"},
			Price: 5.49, StockQuantity: 10, IsActive: true,
		}))

		p, err := s.GetProduct(ctx, "SKU-BREAD")
		require.NoError(t, err)
		assert.Equal(t, []string{"Contains: Gluten", "Nuts"}, p.Allergens)
	})
}

func TestSeed(t *testing.T) {
	t.Run("should be idempotent", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		first, err := s.Seed(ctx)
		require.NoError(t, err)
		assert.Greater(t, first, 0)

		second, err := s.Seed(ctx)
		require.NoError(t, err)
		assert.Zero(t, second)
	})
}
