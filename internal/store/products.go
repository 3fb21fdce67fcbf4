package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `p.id, p.slug, p.name, p.description, p.category, p.base_price, p.is_active, p.created_at, p.updated_at, p.version`

const variantColumns = `v.id, v.product_id, v.sku, v.size, v.color, v.price_override, v.stock_quantity, v.created_at, v.updated_at, v.version`

func scanProduct(row interface{ Scan(...interface{}) error }, p *models.Product, extra ...interface{}) error {
	dest := []interface{}{
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.BasePrice,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	}
	return row.Scan(append(dest, extra...)...)
}

func scanVariant(row interface{ Scan(...interface{}) error }, v *models.Variant, extra ...interface{}) error {
	var override decimal.NullDecimal
	dest := []interface{}{
		&v.ID,
		&v.ProductID,
		&v.SKU,
		&v.Size,
		&v.Color,
		&override,
		&v.StockQuantity,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Version,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if override.Valid {
		price := override.Decimal
		v.PriceOverride = &price
	}
	return nil
}

type NewProduct struct {
	Slug        string
	Name        string
	Description string
	Category    string
	BasePrice   decimal.Decimal
}

func CreateProduct(ctx context.Context, db database.DBTX, np NewProduct) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products AS p (slug, name, description, category, base_price, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(db.QueryRowContext(ctx, query, np.Slug, np.Name, np.Description, np.Category, np.BasePrice), product)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrSlugTaken
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

type NewVariant struct {
	ProductID     int64
	SKU           string
	Size          string
	Color         string
	PriceOverride *decimal.Decimal
	Stock         int
}

func CreateVariant(ctx context.Context, db database.DBTX, nv NewVariant) (*models.Variant, error) {
	variant := &models.Variant{}

	var override decimal.NullDecimal
	if nv.PriceOverride != nil {
		override = decimal.NullDecimal{Decimal: *nv.PriceOverride, Valid: true}
	}

	query := `
		INSERT INTO product_variants AS v (product_id, sku, size, color, price_override, stock_quantity, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + variantColumns

	err := scanVariant(db.QueryRowContext(ctx, query, nv.ProductID, nv.SKU, nv.Size, nv.Color, override, nv.Stock), variant)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrSKUTaken
		}
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("create variant: %w", err)
	}

	return variant, nil
}

func GetProduct(ctx context.Context, db database.DBTX, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductBySlug returns an active product with its variants.
func GetProductBySlug(ctx context.Context, db database.DBTX, slug string) (*models.Product, error) {
	product := &models.Product{}

	err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.slug = $1 AND p.is_active`, slug), product)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product by slug: %w", err)
	}

	variants, err := ListVariants(ctx, db, product.ID)
	if err != nil {
		return nil, err
	}
	product.Variants = variants

	return product, nil
}

func ListVariants(ctx context.Context, db database.DBTX, productID int64) ([]models.Variant, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants v WHERE v.product_id = $1 ORDER BY v.id`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := []models.Variant{}
	for rows.Next() {
		var v models.Variant
		if err := scanVariant(rows, &v); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return variants, nil
}

func GetVariant(ctx context.Context, db database.DBTX, id int64) (*models.Variant, error) {
	variant := &models.Variant{}

	err := scanVariant(db.QueryRowContext(ctx,
		`SELECT `+variantColumns+` FROM product_variants v WHERE v.id = $1`, id), variant)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	return variant, nil
}

// GetPurchasableVariant returns a variant whose product is active.
func GetPurchasableVariant(ctx context.Context, db database.DBTX, id int64) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT ` + variantColumns + `
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.is_active`

	err := scanVariant(db.QueryRowContext(ctx, query, id), variant)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get purchasable variant: %w", err)
	}

	return variant, nil
}

// UpdateStockOptimistic sets a variant's stock if its version still matches.
func UpdateStockOptimistic(ctx context.Context, db database.DBTX, variantID int64, newStock int, version int) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		UPDATE product_variants AS v
		SET stock_quantity = $1, version = version + 1, updated_at = NOW()
		WHERE v.id = $2 AND v.version = $3
		RETURNING ` + variantColumns

	err := scanVariant(db.QueryRowContext(ctx, query, newStock, variantID, version), variant)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := GetVariant(ctx, db, variantID); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update stock: %w", err)
	}

	return variant, nil
}

// DecrementStockClamped subtracts quantity from a variant's stock, flooring
// at zero, and returns the owning product id.
func DecrementStockClamped(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) (int64, error) {
	var productID int64
	err := tx.QueryRowContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = GREATEST(stock_quantity - $1, 0),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING product_id`,
		quantity, variantID).Scan(&productID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, database.ErrVariantNotFound
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return productID, nil
}

type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortName      ProductSort = "name"
)

var productOrderBy = map[ProductSort]string{
	SortNewest:    "p.created_at DESC, p.id DESC",
	SortPriceAsc:  "p.base_price ASC, p.id ASC",
	SortPriceDesc: "p.base_price DESC, p.id DESC",
	SortName:      "p.name ASC, p.id ASC",
}

type ProductFilter struct {
	Category string
	Search   string
	Size     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     ProductSort
	Page     int
	PageSize int
	// ViewerID, when set, fills Product.InWishlist for that user.
	ViewerID *int64
}

func ListProducts(ctx context.Context, db database.DBTX, f ProductFilter) (*OffsetPage, error) {
	page, pageSize := NormalizePage(f.Page, f.PageSize)

	var q queryBuilder
	q.where("p.is_active")
	if f.Category != "" {
		q.where("p.category = %s", f.Category)
	}
	if f.Search != "" {
		pattern := containsPattern(f.Search)
		q.where("(p.name ILIKE %s OR p.description ILIKE %s)", pattern, pattern)
	}
	if f.Size != "" {
		q.where(`EXISTS (SELECT 1 FROM product_variants sv
			WHERE sv.product_id = p.id AND sv.size = %s AND sv.stock_quantity > 0)`, f.Size)
	}
	if f.MinPrice != nil {
		q.where("p.base_price >= %s", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q.where("p.base_price <= %s", *f.MaxPrice)
	}

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p `+q.whereClause(), q.snapshot()...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	inWishlist := "FALSE"
	if f.ViewerID != nil {
		inWishlist = fmt.Sprintf(
			"EXISTS (SELECT 1 FROM wishlist_items w WHERE w.product_id = p.id AND w.user_id = %s)",
			q.arg(*f.ViewerID))
	}

	orderBy, ok := productOrderBy[f.Sort]
	if !ok {
		orderBy = productOrderBy[SortNewest]
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM products p
		%s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		productColumns, inWishlist, q.whereClause(), orderBy, q.arg(pageSize), q.arg((page-1)*pageSize))

	rows, err := db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product, &product.InWishlist); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func AddWishlistItem(ctx context.Context, db database.DBTX, userID, productID int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO wishlist_items (user_id, product_id, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		userID, productID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return database.ErrProductNotFound
		}
		return fmt.Errorf("add wishlist item: %w", err)
	}
	return nil
}

func RemoveWishlistItem(ctx context.Context, db database.DBTX, userID, productID int64) error {
	return execOne(ctx, db, database.ErrProductNotFound, "remove wishlist item",
		`DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
}

func ListWishlist(ctx context.Context, db database.DBTX, userID int64) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM wishlist_items w
		JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1 AND p.is_active
		ORDER BY w.created_at DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.InWishlist = true
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}
