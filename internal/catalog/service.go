package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kipuventas/kipu/internal/shared"
)

const (
	storefrontCacheKey   = "catalog:storefront"
	defaultStorefrontTTL = 30 * time.Second
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, id int64, p Product) error
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	CountProductReferences(ctx context.Context, id int64) (int64, error)
	DeleteProduct(ctx context.Context, id int64) error
	Storefront(ctx context.Context) ([]StorefrontEntry, error)
	InsertCategory(ctx context.Context, name string) (int64, error)
	UpdateCategory(ctx context.Context, id int64, name string) error
	ListCategories(ctx context.Context) ([]Category, error)
	CountCategoryProducts(ctx context.Context, id int64) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations. The storefront listing is cached
// in Redis behind a singleflight group so a cold key triggers one query.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  *redis.Client
	group  singleflight.Group
	logger *slog.Logger
	ttl    time.Duration
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	StorefrontTTL time.Duration
}

// NewService builds Service. cache may be nil to disable caching.
func NewService(repo RepositoryPort, audit AuditPort, cache *redis.Client, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.StorefrontTTL
	if ttl <= 0 {
		ttl = defaultStorefrontTTL
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, ttl: ttl}
}

// CreateProduct registers a product. It starts Inactive until stocked.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput, actorID int64) (*Product, error) {
	p := Product{
		Name:        input.Name,
		Description: input.Description,
		Brand:       input.Brand,
		CategoryID:  input.CategoryID,
		UnitPrice:   input.UnitPrice,
		ImagePath:   input.ImagePath,
	}
	id, err := s.repo.InsertProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "catalog:product_create", id, map[string]any{"name": input.Name})
	return s.repo.GetProduct(ctx, id)
}

// UpdateProduct updates the editable fields of a product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput, actorID int64) (*Product, error) {
	p := Product{
		Name:        input.Name,
		Description: input.Description,
		Brand:       input.Brand,
		CategoryID:  input.CategoryID,
		UnitPrice:   input.UnitPrice,
		ImagePath:   input.ImagePath,
	}
	if err := s.repo.UpdateProduct(ctx, id, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "catalog:product_update", id, nil)
	return s.repo.GetProduct(ctx, id)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns products matching the filter. Name and brand match
// case and diacritic insensitively.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Name == "" && filter.Brand == "" {
		return products, nil
	}
	filtered := products[:0]
	for _, p := range products {
		if matchFold(p.Name, filter.Name) && matchFold(p.Brand, filter.Brand) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// DeleteProduct removes a product that no lot or sale references.
func (s *Service) DeleteProduct(ctx context.Context, id int64, actorID int64) error {
	refs, err := s.repo.CountProductReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d rows", ErrProductReferenced, refs)
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "catalog:product_delete", id, nil)
	return nil
}

// Storefront returns the buyer-facing listing with per-product sellable
// stock, served from cache when warm.
func (s *Service) Storefront(ctx context.Context) ([]StorefrontEntry, error) {
	if s.cache == nil {
		return s.repo.Storefront(ctx)
	}
	cached, err := s.cache.Get(ctx, storefrontCacheKey).Bytes()
	if err == nil {
		var entries []StorefrontEntry
		if err := json.Unmarshal(cached, &entries); err == nil {
			return entries, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("storefront cache read", slog.Any("error", err))
	}

	result, err, _ := s.group.Do(storefrontCacheKey, func() (any, error) {
		entries, err := s.repo.Storefront(ctx)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, storefrontCacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn("storefront cache write", slog.Any("error", err))
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]StorefrontEntry), nil
}

// CreateCategory stores a category.
func (s *Service) CreateCategory(ctx context.Context, name string, actorID int64) (Category, error) {
	id, err := s.repo.InsertCategory(ctx, name)
	if err != nil {
		return Category{}, err
	}
	s.recordAudit(ctx, actorID, "catalog:category_create", id, map[string]any{"name": name})
	return Category{ID: id, Name: name}, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, id int64, name string, actorID int64) error {
	if err := s.repo.UpdateCategory(ctx, id, name); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "catalog:category_update", id, map[string]any{"name": name})
	return nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// DeleteCategory removes a category that no product references.
func (s *Service) DeleteCategory(ctx context.Context, id int64, actorID int64) error {
	count, err := s.repo.CountCategoryProducts(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d products", ErrCategoryReferenced, count)
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "catalog:category_delete", id, nil)
	return nil
}

// invalidate drops the storefront cache after a write.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, storefrontCacheKey).Err(); err != nil {
		s.logger.Warn("storefront cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "catalog",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
