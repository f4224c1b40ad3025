package store

import (
	"fmt"
	"strings"
	"time"
)

// Product is a row in the products table.
type Product struct {
	ID              int64    `json:"id"`
	ItemName        string   `json:"item_name"`
	SKU             string   `json:"sku"`
	Brand           string   `json:"brand"`
	Quantity        int      `json:"quantity"`
	Unit            string   `json:"unit"`
	Category        string   `json:"category"`
	CaloriesPer100g int      `json:"calories_per_100g"`
	ProteinG        float64  `json:"protein_g"`
	FatG            float64  `json:"fat_g"`
	CarbsG          float64  `json:"carbs_g"`
	SugarG          float64  `json:"sugar_g"`
	Allergens       []string `json:"allergens"`
	Price           float64  `json:"price"`
	StockQuantity   int      `json:"stock_quantity"`
	IsActive        bool     `json:"is_active"`
}

// InStock reports whether the product has any stock left.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// PricePerUnit formats the price relative to the package size, e.g. "$3.49/500g".
func (p *Product) PricePerUnit() string {
	return fmt.Sprintf("$%v/%d%s", p.Price, p.Quantity, p.Unit)
}

func splitAllergens(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// CartItem is a line in the shopping_carts table.
type CartItem struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"user_id"`
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Brand       string  `json:"brand"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
	Notes       string  `json:"notes,omitempty"`
	SessionID   string  `json:"session_id,omitempty"`
	Status      string  `json:"status"`
}

// CartSummary aggregates a user's cart for presentation.
type CartSummary struct {
	UserID        string         `json:"user_id"`
	Items         []CartItem     `json:"items"`
	ItemCount     int            `json:"item_count"`
	TotalItems    int            `json:"total_items"`
	TotalPrice    float64        `json:"total_price"`
	BrandsSummary map[string]int `json:"brands_summary"`
	Status        string         `json:"status"`
}

// CartSession is a row in the cart_sessions table.
type CartSession struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	SessionType string    `json:"session_type"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry at the given time.
func (cs *CartSession) Expired(now time.Time) bool {
	return now.After(cs.ExpiresAt)
}

// OrderReceipt summarizes a completed checkout.
type OrderReceipt struct {
	OrderID     int64   `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	TotalAmount float64 `json:"total_amount"`
	ItemCount   int     `json:"item_count"`
}

// OrderItem is a row in the order_items table.
type OrderItem struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Brand       string  `json:"brand"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TotalPrice  float64 `json:"total_price"`
}
