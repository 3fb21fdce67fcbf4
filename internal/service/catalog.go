package service

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/cache"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateProductRequest struct {
	Slug        string
	Name        string
	Description string
	Category    string
	BasePrice   decimal.Decimal
}

type AddVariantRequest struct {
	SKU           string
	Size          string
	Color         string
	PriceOverride *decimal.Decimal
	Stock         int
}

type CatalogService struct {
	db    *sql.DB
	cache *cache.Catalog
}

func NewCatalogService(db *sql.DB, c *cache.Catalog) *CatalogService {
	return &CatalogService{db: db, cache: c}
}

func (s *CatalogService) List(ctx context.Context, f store.ProductFilter) (*store.OffsetPage, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, apperr.Validation("minPrice must not exceed maxPrice")
	}
	if f.Sort != "" {
		switch f.Sort {
		case store.SortNewest, store.SortPriceAsc, store.SortPriceDesc, store.SortName:
		default:
			return nil, apperr.Validation("unknown sort %q", f.Sort)
		}
	}
	f.Size = strings.ToUpper(strings.TrimSpace(f.Size))
	return store.ListProducts(ctx, s.db, f)
}

// Get returns an active product with its variants, served from the cache
// when one is configured.
func (s *CatalogService) Get(ctx context.Context, slug string) (*models.Product, error) {
	p, err := s.cache.Product(ctx, slug, func(ctx context.Context) (*models.Product, error) {
		return store.GetProductBySlug(ctx, s.db, slug)
	})
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if !req.BasePrice.IsPositive() {
		return nil, apperr.Validation("basePrice must be positive")
	}

	slug := Slugify(req.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, apperr.Validation("slug is required")
	}

	p, err := store.CreateProduct(ctx, s.db, store.NewProduct{
		Slug:        slug,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		BasePrice:   req.BasePrice.Round(2),
	})
	if err != nil {
		return nil, translate(err)
	}

	logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

func (s *CatalogService) AddVariant(ctx context.Context, productID int64, req AddVariantRequest) (*models.Variant, error) {
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return nil, apperr.Validation("sku is required")
	}
	if req.Stock < 0 {
		return nil, apperr.Validation("stock must not be negative")
	}
	if req.PriceOverride != nil && !req.PriceOverride.IsPositive() {
		return nil, apperr.Validation("priceOverride must be positive")
	}

	v, err := store.CreateVariant(ctx, s.db, store.NewVariant{
		ProductID:     productID,
		SKU:           sku,
		Size:          strings.ToUpper(strings.TrimSpace(req.Size)),
		Color:         strings.TrimSpace(req.Color),
		PriceOverride: req.PriceOverride,
		Stock:         req.Stock,
	})
	if err != nil {
		return nil, translate(err)
	}

	s.invalidate(ctx, productID)
	return v, nil
}

// SetStock overwrites a variant's stock if version still matches the caller's
// last read.
func (s *CatalogService) SetStock(ctx context.Context, variantID int64, stock, version int) (*models.Variant, error) {
	if stock < 0 {
		return nil, apperr.Validation("stock must not be negative")
	}

	v, err := store.UpdateStockOptimistic(ctx, s.db, variantID, stock, version)
	if err != nil {
		return nil, translate(err)
	}

	s.invalidate(ctx, v.ProductID)
	logger.Info("variant stock set", zap.Int64("variant_id", variantID), zap.Int("stock", stock))
	return v, nil
}

func (s *CatalogService) invalidate(ctx context.Context, productIDs ...int64) {
	if err := s.cache.InvalidateProducts(ctx, productIDs...); err != nil {
		logger.Warn("catalog invalidation failed", zap.Int64s("product_ids", productIDs), zap.Error(err))
	}
}

func (s *CatalogService) Wishlist(ctx context.Context, userID int64) ([]models.Product, error) {
	return store.ListWishlist(ctx, s.db, userID)
}

func (s *CatalogService) AddToWishlist(ctx context.Context, userID, productID int64) error {
	if _, err := store.GetProduct(ctx, s.db, productID); err != nil {
		return translate(err)
	}
	return translate(store.AddWishlistItem(ctx, s.db, userID, productID))
}

func (s *CatalogService) RemoveFromWishlist(ctx context.Context, userID, productID int64) error {
	return translate(store.RemoveWishlistItem(ctx, s.db, userID, productID))
}

// Slugify lowercases s and joins its alphanumeric runs with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
