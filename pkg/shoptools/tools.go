// Package shoptools registers the shopping tool catalogue: the fixed set of
// tools the model can call during a conversation, bound to the product store
// and the ingredient extractor.
package shoptools

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shreyanshjain05/sparkthon/pkg/agent"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
	"github.com/shreyanshjain05/sparkthon/pkg/toolexec"
)

const (
	defaultSessionTTL   = 24 * time.Hour
	alternativesLimit   = 5
	defaultCartQuantity = 1

	// Used when the model omits the address at checkout.
	defaultShippingAddress = "123 Test Street, Test City, TC 12345"
)

// Catalogue binds the shopping tools to their backing services.
type Catalogue struct {
	store      *store.Store
	extractor  *agent.Extractor
	sessionTTL time.Duration
	logger     zerolog.Logger
}

// Config holds catalogue configuration.
type Config struct {
	Store      *store.Store
	Extractor  *agent.Extractor
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

// New creates the tool catalogue.
func New(cfg Config) (*Catalogue, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return &Catalogue{
		store:      cfg.Store,
		extractor:  cfg.Extractor,
		sessionTTL: cfg.SessionTTL,
		logger:     cfg.Logger,
	}, nil
}

// Register adds every shopping tool to the registry.
func (c *Catalogue) Register(registry *toolexec.Registry) error {
	definitions := []toolexec.ToolDefinition{
		{
			Name:        "extract_ingredients",
			Description: "Extract the recipe name and ingredient list from the user's recipe request",
			Parameters: []toolexec.ToolParameter{
				{Name: "recipe_request", Type: "string", Description: "The user's recipe request in their own words", Required: true},
			},
			Handler: c.extractIngredients,
		},
		{
			Name:        "create_cart_session",
			Description: "Create a new shopping cart session for the user. Must be called before adding items to the cart",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "session_type", Type: "string", Description: "Session type: general, recipe_based or bulk_order", Default: "recipe_based"},
			},
			Handler: c.createCartSession,
		},
		{
			Name:        "check_ingredient_availability",
			Description: "Find available products matching an ingredient name",
			Parameters: []toolexec.ToolParameter{
				{Name: "ingredient_name", Type: "string", Description: "The ingredient to look for", Required: true},
				{Name: "category", Type: "string", Description: "Optional product category to narrow the search"},
			},
			Handler: c.checkIngredientAvailability,
		},
		{
			Name:        "get_product_details",
			Description: "Get full details including nutrition for one or more products by SKU",
			Parameters: []toolexec.ToolParameter{
				{Name: "skus", Type: "array", Description: "Product SKUs to fetch", Required: true},
			},
			Handler: c.getProductDetails,
		},
		{
			Name:        "add_to_cart",
			Description: "Add a product to the user's cart. Requires an active cart session",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "sku", Type: "string", Description: "The product SKU", Required: true},
				{Name: "quantity", Type: "integer", Description: "How many to add", Default: defaultCartQuantity},
				{Name: "notes", Type: "string", Description: "Optional note for this item"},
				{Name: "session_id", Type: "string", Description: "The active cart session id", Required: true},
			},
			Handler: c.addToCart,
		},
		{
			Name:        "get_user_cart",
			Description: "Get the user's cart contents with totals and a per-brand summary",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "status", Type: "string", Description: "Cart line status to list", Default: "active"},
			},
			Handler: c.getUserCart,
		},
		{
			Name:        "remove_from_cart",
			Description: "Remove a product from the user's cart",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "sku", Type: "string", Description: "The product SKU to remove", Required: true},
			},
			Handler: c.removeFromCart,
		},
		{
			Name:        "update_cart_quantity",
			Description: "Change the quantity of a cart item. Zero removes the item",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "sku", Type: "string", Description: "The product SKU to update", Required: true},
				{Name: "new_quantity", Type: "integer", Description: "The new quantity", Required: true},
			},
			Handler: c.updateCartQuantity,
		},
		{
			Name:        "search_alternatives",
			Description: "Find in-stock alternatives for an unavailable ingredient",
			Parameters: []toolexec.ToolParameter{
				{Name: "ingredient_name", Type: "string", Description: "The ingredient needing a substitute", Required: true},
				{Name: "exclude_skus", Type: "array", Description: "SKUs already shown or rejected"},
				{Name: "category", Type: "string", Description: "Optional category to search within"},
			},
			Handler: c.searchAlternatives,
		},
		{
			Name:        "checkout_cart",
			Description: "Place an order from the user's active cart",
			Parameters: []toolexec.ToolParameter{
				{Name: "user_id", Type: "string", Description: "The user's id", Required: true},
				{Name: "shipping_address", Type: "string", Description: "Where to ship the order", Default: defaultShippingAddress},
				{Name: "delivery_date", Type: "string", Description: "Requested delivery date, YYYY-MM-DD"},
				{Name: "special_instructions", Type: "string", Description: "Optional delivery instructions"},
			},
			Handler: c.checkoutCart,
		},
		{
			Name:        "get_nutrition_comparison",
			Description: "Compare nutrition facts across products by SKU",
			Parameters: []toolexec.ToolParameter{
				{Name: "skus", Type: "array", Description: "Product SKUs to compare", Required: true},
			},
			Handler: c.getNutritionComparison,
		},
		{
			Name:        "clear_expired_sessions",
			Description: "Deactivate cart sessions that have passed their expiry",
			Parameters:  []toolexec.ToolParameter{},
			Handler:     c.clearExpiredSessions,
		},
	}

	for _, def := range definitions {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}

	c.logger.Info().Int("tools", len(definitions)).Msg("Shopping tools registered")
	return nil
}

func (c *Catalogue) extractIngredients(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	request := stringArg(params, "recipe_request")

	extraction := c.extractor.Extract(ctx, request)
	return map[string]interface{}{
		"recipe":      extraction.Recipe,
		"ingredients": extraction.Ingredients,
	}, nil
}

func (c *Catalogue) createCartSession(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	sessionType := stringArg(params, "session_type")

	session, err := c.store.CreateSession(ctx, userID, sessionType, c.sessionTTL)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"session_id":   session.SessionID,
		"session_type": session.SessionType,
		"expires_at":   session.ExpiresAt.Format(time.RFC3339),
		"message":      fmt.Sprintf("Cart session %s created", session.SessionID),
	}, nil
}

func (c *Catalogue) checkIngredientAvailability(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name := stringArg(params, "ingredient_name")
	category := stringArg(params, "category")

	products, err := c.store.FindProducts(ctx, name, category)
	if err != nil {
		return nil, err
	}

	options := make([]map[string]interface{}, 0, len(products))
	for i := range products {
		if !products[i].InStock() {
			continue
		}
		options = append(options, productOption(&products[i]))
	}

	return map[string]interface{}{
		"ingredient": name,
		"available":  len(options) > 0,
		"options":    options,
		"count":      len(options),
	}, nil
}

func (c *Catalogue) getProductDetails(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	// An empty sku list yields an empty result rather than an error, so
	// the model can recover without a failed tool round.
	skus := stringSliceArg(params, "skus")

	products, err := c.store.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	details := make([]map[string]interface{}, 0, len(products))
	for i := range products {
		details = append(details, productDetail(&products[i]))
	}

	return map[string]interface{}{
		"products": details,
		"count":    len(details),
	}, nil
}

func (c *Catalogue) addToCart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	sku := stringArg(params, "sku")
	quantity := intArg(params, "quantity", defaultCartQuantity)
	notes := stringArg(params, "notes")
	sessionID := stringArg(params, "session_id")

	item, action, err := c.store.AddToCart(ctx, userID, sku, quantity, notes, sessionID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"action":      action,
		"item_name":   item.ProductName,
		"sku":         item.SKU,
		"quantity":    item.Quantity,
		"unit_price":  item.UnitPrice,
		"total_price": item.TotalPrice,
		"message":     fmt.Sprintf("%s %s (x%d) in your cart", actionVerb(action), item.ProductName, item.Quantity),
	}, nil
}

func (c *Catalogue) getUserCart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	status := stringArg(params, "status")

	summary, err := c.store.GetCart(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(summary.Items))
	for _, item := range summary.Items {
		items = append(items, map[string]interface{}{
			"sku":         item.SKU,
			"name":        item.ProductName,
			"brand":       item.Brand,
			"quantity":    item.Quantity,
			"unit_price":  item.UnitPrice,
			"total_price": item.TotalPrice,
			"notes":       item.Notes,
		})
	}

	return map[string]interface{}{
		"user_id":        summary.UserID,
		"items":          items,
		"item_count":     summary.ItemCount,
		"total_items":    summary.TotalItems,
		"total_price":    summary.TotalPrice,
		"brands_summary": summary.BrandsSummary,
		"status":         summary.Status,
	}, nil
}

func (c *Catalogue) removeFromCart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	sku := stringArg(params, "sku")

	if err := c.store.RemoveFromCart(ctx, userID, sku); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sku":     sku,
		"message": fmt.Sprintf("Removed %s from your cart", sku),
	}, nil
}

func (c *Catalogue) updateCartQuantity(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	sku := stringArg(params, "sku")
	newQuantity := intArg(params, "new_quantity", 0)

	item, err := c.store.UpdateCartQuantity(ctx, userID, sku, newQuantity)
	if err != nil {
		return nil, err
	}

	// Zero or negative quantities route to removal.
	if item == nil {
		return map[string]interface{}{
			"action":  "removed",
			"sku":     sku,
			"message": fmt.Sprintf("Removed %s from your cart", sku),
		}, nil
	}

	return map[string]interface{}{
		"action":      "updated",
		"sku":         item.SKU,
		"item_name":   item.ProductName,
		"quantity":    item.Quantity,
		"total_price": item.TotalPrice,
		"message":     fmt.Sprintf("Updated %s to quantity %d", item.ProductName, item.Quantity),
	}, nil
}

func (c *Catalogue) searchAlternatives(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name := stringArg(params, "ingredient_name")
	excludeSKUs := stringSliceArg(params, "exclude_skus")
	category := stringArg(params, "category")

	products, err := c.store.FindAlternatives(ctx, name, excludeSKUs, category, alternativesLimit)
	if err != nil {
		return nil, err
	}

	alternatives := make([]map[string]interface{}, 0, len(products))
	for i := range products {
		alternatives = append(alternatives, productOption(&products[i]))
	}

	return map[string]interface{}{
		"ingredient":   name,
		"alternatives": alternatives,
		"count":        len(alternatives),
	}, nil
}

func (c *Catalogue) checkoutCart(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	userID := stringArg(params, "user_id")
	shippingAddress := stringArg(params, "shipping_address")

	opts := store.CheckoutOptions{
		SpecialInstructions: stringArg(params, "special_instructions"),
	}
	if raw := stringArg(params, "delivery_date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid delivery_date %q, expected YYYY-MM-DD", raw)
		}
		opts.DeliveryDate = &date
	}

	receipt, err := c.store.Checkout(ctx, userID, shippingAddress, opts)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"order_id":     receipt.OrderID,
		"order_number": receipt.OrderNumber,
		"total_amount": receipt.TotalAmount,
		"item_count":   receipt.ItemCount,
		"message":      fmt.Sprintf("Order %s placed for $%.2f", receipt.OrderNumber, receipt.TotalAmount),
	}, nil
}

func (c *Catalogue) getNutritionComparison(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	skus := stringSliceArg(params, "skus")

	products, err := c.store.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	comparison := make([]map[string]interface{}, 0, len(products))
	for i := range products {
		p := &products[i]
		comparison = append(comparison, map[string]interface{}{
			"sku":                p.SKU,
			"name":               p.ItemName,
			"brand":              p.Brand,
			"nutrition_per_100g": nutritionFacts(p),
			"allergens":          allergensOrNone(p),
		})
	}

	return map[string]interface{}{
		"comparison": comparison,
		"count":      len(comparison),
	}, nil
}

func (c *Catalogue) clearExpiredSessions(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	expired, err := c.store.ExpireSessions(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sessions_expired": expired,
		"message":          fmt.Sprintf("Deactivated %d expired sessions", expired),
	}, nil
}

// productOption is the compact product shape used when presenting choices.
func productOption(p *store.Product) map[string]interface{} {
	return map[string]interface{}{
		"sku":            p.SKU,
		"name":           p.ItemName,
		"brand":          p.Brand,
		"price":          p.Price,
		"price_per_unit": p.PricePerUnit(),
		"package":        fmt.Sprintf("%d%s", p.Quantity, p.Unit),
		"category":       p.Category,
		"stock":          p.StockQuantity,
	}
}

// productDetail extends the option shape with nutrition and allergens.
func productDetail(p *store.Product) map[string]interface{} {
	detail := productOption(p)
	detail["nutrition_per_100g"] = nutritionFacts(p)
	detail["allergens"] = allergensOrNone(p)
	return detail
}

func nutritionFacts(p *store.Product) map[string]interface{} {
	return map[string]interface{}{
		"calories": p.CaloriesPer100g,
		"protein":  fmt.Sprintf("%vg", p.ProteinG),
		"fat":      fmt.Sprintf("%vg", p.FatG),
		"carbs":    fmt.Sprintf("%vg", p.CarbsG),
		"sugar":    fmt.Sprintf("%vg", p.SugarG),
	}
}

func allergensOrNone(p *store.Product) []string {
	if len(p.Allergens) == 0 {
		return []string{"None"}
	}
	return p.Allergens
}

func actionVerb(action string) string {
	if action == store.CartActionUpdated {
		return "Updated"
	}
	return "Added"
}
