package store

import (
	"context"
	"fmt"
)

// Seed populates the product catalogue with the grocery inventory. Existing
// SKUs are left untouched, so seeding is idempotent.
func (s *Store) Seed(ctx context.Context) (int, error) {
	type row struct {
		name      string
		sku       string
		brand     string
		quantity  int
		unit      string
		category  string
		calories  int
		protein   float64
		fat       float64
		carbs     float64
		sugar     float64
		allergens string
		price     float64
	}

	items := []row{
		{"All-purpose flour", "DOUGH-FLOUR-500G-GOLD", "Gold Medal", 1, "500g", "baking", 280, 12, 2, 58, 1, "Contains: Gluten", 3.49},
		{"All-purpose flour", "DOUGH-FLOUR-500G-KING", "King Arthur", 1, "500g", "baking", 290, 11, 1, 60, 0, "Contains: Gluten", 4.29},
		{"Active dry yeast", "DOUGH-YEAST-10G-FLEISCH", "Fleischmann's", 1, "10g", "baking", 35, 4, 0, 5, 0, "", 2.99},
		{"Sugar", "DOUGH-SUGAR-500G-DOMINO", "Domino", 1, "500g", "baking", 1935, 0, 0, 500, 500, "", 2.89},
		{"Salt", "DOUGH-SALT-500G-MORTON", "Morton", 1, "500g", "spices", 0, 0, 0, 0, 0, "", 1.49},
		{"Olive oil", "COMMON-OLIVEOIL-500ML-BERTOLLI", "Bertolli", 1, "500ml", "oils", 4050, 0, 450, 0, 0, "", 8.99},
		{"Olive oil", "COMMON-OLIVEOIL-500ML-POMPEIAN", "Pompeian", 1, "500ml", "oils", 4000, 0, 445, 0, 0, "", 7.49},
		{"Tomato puree", "SAUCE-TOMATO-400G-HUNT", "Hunt's", 1, "400g", "canned", 140, 6, 1, 32, 24, "", 1.89},
		{"Tomato puree", "SAUCE-TOMATO-400G-CONTADINA", "Contadina", 1, "400g", "canned", 135, 6, 0, 30, 22, "", 1.69},
		{"Mozzarella cheese", "TOPPINGS-CHEESE-200G-KRAFT", "Kraft", 1, "200g", "dairy", 570, 50, 40, 8, 2, "Contains: Milk", 4.99},
		{"Mozzarella cheese", "TOPPINGS-CHEESE-200G-GALBANI", "Galbani", 1, "200g", "dairy", 580, 52, 38, 10, 3, "Contains: Milk", 6.29},
		{"Bananas", "FRUIT-BANANA-1KG-CHIQUITA", "Chiquita", 1, "1kg", "fruits", 890, 11, 3, 228, 122, "", 2.49},
		{"Apples", "FRUIT-APPLE-1KG-GALA", "Gala", 1, "1kg", "fruits", 520, 3, 2, 138, 104, "", 3.99},
		{"Carrots", "VEG-CARROT-1KG-BOLTHOUSE", "Bolthouse Farms", 1, "1kg", "vegetables", 410, 9, 2, 96, 47, "", 2.79},
		{"Spinach", "VEG-SPINACH-300G-FRESH", "Fresh Express", 1, "300g", "vegetables", 69, 9, 1, 11, 1, "", 2.99},
		{"Milk", "DAIRY-MILK-1L-HORIZON", "Horizon Organic", 1, "1L", "dairy", 600, 32, 32, 48, 48, "Contains: Milk", 4.99},
		{"Eggs", "DAIRY-EGGS-12CT-ORGANIC", "Organic Valley", 12, "pieces", "dairy", 820, 70, 55, 6, 0, "Contains: Eggs", 5.99},
		{"Greek Yogurt", "DAIRY-YOGURT-500G-CHOBANI", "Chobani", 1, "500g", "dairy", 600, 100, 20, 36, 32, "Contains: Milk", 5.99},
		{"Chicken Breast", "MEAT-CHICKEN-1KG-PERDUE", "Perdue", 1, "1kg", "meat", 1650, 310, 36, 0, 0, "", 12.99},
		{"Ground Beef", "MEAT-BEEF-500G-85LEAN", "85% Lean", 1, "500g", "meat", 1125, 100, 75, 0, 0, "", 8.99},
		{"Salmon", "FISH-SALMON-500G-WILD", "Wild Caught", 1, "500g", "seafood", 980, 120, 45, 0, 0, "Contains: Fish", 24.99},
		{"Rice", "PANTRY-RICE-1KG-BASMATI", "Basmati", 1, "1kg", "grains", 3580, 82, 7, 785, 1, "", 6.99},
		{"Pasta", "PANTRY-PASTA-500G-BARILLA", "Barilla", 1, "500g", "grains", 1750, 60, 7, 350, 12, "Contains: Gluten", 2.99},
		{"Pasta", "PANTRY-PASTA-500G-RONZONI", "Ronzoni", 1, "500g", "grains", 1720, 58, 6, 345, 14, "Contains: Gluten", 2.49},
		{"Bread", "BAKERY-BREAD-500G-DAVE", "Dave's Killer", 1, "500g", "bakery", 1400, 55, 30, 220, 30, "Contains: Gluten, Nuts, Seeds", 5.49},
		{"Orange Juice", "BEV-OJ-1L-TROPICANA", "Tropicana", 1, "1L", "beverages", 460, 8, 0, 112, 100, "", 3.99},
		{"Coffee", "BEV-COFFEE-340G-STARBUCKS", "Starbucks", 1, "340g", "beverages", 15, 1, 0, 1, 0, "", 12.99},
		{"Frozen Pizza", "FROZEN-PIZZA-400G-DIGIORNO", "DiGiorno", 1, "400g", "frozen", 1120, 48, 44, 132, 16, "Contains: Gluten, Milk", 6.99},
	}

	inserted := 0
	for _, it := range items {
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO products (item_name, sku, brand, quantity, unit, category,
				calories_per_100g, protein_g, fat_g, carbs_g, sugar_g, allergens, price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.name, it.sku, it.brand, it.quantity, it.unit, it.category,
			it.calories, it.protein, it.fat, it.carbs, it.sugar, it.allergens, it.price,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed product %s: %w", it.sku, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	s.logger.Info().Int("inserted", inserted).Int("catalogue", len(items)).Msg("Product catalogue seeded")
	return inserted, nil
}
