package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store wraps the SQLite database holding products, carts, sessions and orders.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// New opens the database, enables WAL mode and initializes the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store initialized")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_name TEXT NOT NULL,
			sku TEXT UNIQUE NOT NULL,
			brand TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit TEXT NOT NULL,
			category TEXT NOT NULL,
			calories_per_100g INTEGER,
			protein_g REAL,
			fat_g REAL,
			carbs_g REAL,
			sugar_g REAL,
			allergens TEXT,
			price REAL NOT NULL,
			stock_quantity INTEGER DEFAULT 100,
			is_active BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);
		CREATE INDEX IF NOT EXISTS idx_products_name ON products(item_name);
		CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

		CREATE TABLE IF NOT EXISTS cart_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			session_id TEXT UNIQUE NOT NULL,
			session_type TEXT DEFAULT 'general' CHECK(session_type IN ('general', 'recipe_based', 'bulk_order')),
			active BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_cart_sessions_user ON cart_sessions(user_id);

		CREATE TABLE IF NOT EXISTS shopping_carts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			product_name TEXT,
			brand TEXT,
			quantity INTEGER NOT NULL CHECK(quantity > 0),
			unit_price REAL NOT NULL CHECK(unit_price >= 0),
			notes TEXT,
			session_id TEXT REFERENCES cart_sessions(session_id),
			order_id INTEGER,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			status TEXT DEFAULT 'active' CHECK(status IN ('active', 'purchased', 'removed', 'pending'))
		);
		CREATE INDEX IF NOT EXISTS idx_shopping_carts_user ON shopping_carts(user_id, status);

		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			order_number TEXT UNIQUE NOT NULL,
			total_amount REAL NOT NULL CHECK(total_amount >= 0),
			order_status TEXT DEFAULT 'pending' CHECK(order_status IN ('pending', 'confirmed', 'processing', 'shipped', 'delivered', 'cancelled')),
			payment_method TEXT,
			shipping_address TEXT,
			delivery_date DATE,
			special_instructions TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			sku TEXT NOT NULL,
			product_name TEXT,
			brand TEXT,
			quantity INTEGER NOT NULL CHECK(quantity > 0),
			unit_price REAL NOT NULL CHECK(unit_price >= 0),
			total_price REAL NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
