package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shelftrack/shelftrack/internal/apperr"
	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/guard"
	"github.com/shelftrack/shelftrack/internal/models"
)

const (
	StoresCollection   = "stores"
	ProductsCollection = "products"
	LogsCollection     = "logs"

	defaultStoreDescription = "No description provided."
)

// StoresQuery is the owner-scoped store view, newest first.
func StoresQuery(ownerID string) backend.Query {
	return backend.Query{
		Collection: StoresCollection,
		Filters:    []backend.Filter{{Field: "owner_id", Value: ownerID}},
		Order:      &backend.Order{Field: "created_at", Desc: true},
	}
}

// ProductsQuery lists one store's products for their owner, sorted by name.
func ProductsQuery(ownerID, storeID string) backend.Query {
	return backend.Query{
		Collection: ProductsCollection,
		Filters: []backend.Filter{
			{Field: "store_id", Value: storeID},
			{Field: "owner_id", Value: ownerID},
		},
		Order: &backend.Order{Field: "name"},
	}
}

// LogsQuery lists one store's audit trail for their owner, newest first.
func LogsQuery(ownerID, storeID string) backend.Query {
	return backend.Query{
		Collection: LogsCollection,
		Filters: []backend.Filter{
			{Field: "store_id", Value: storeID},
			{Field: "owner_id", Value: ownerID},
		},
		Order: &backend.Order{Field: "timestamp", Desc: true},
	}
}

func StoreKind() Kind[models.Store] {
	return Kind[models.Store]{
		Collection: StoresCollection,

		ID:         func(s *models.Store) string { return s.ID },
		SetID:      func(s *models.Store, id string) { s.ID = id },
		Owner:      func(s *models.Store) string { return s.OwnerID },
		SetOwner:   func(s *models.Store, id string) { s.OwnerID = id },
		SetCreated: func(s *models.Store, t time.Time) { s.CreatedAt = t },

		Normalize: func(s *models.Store) {
			s.Name = strings.TrimSpace(s.Name)
			s.Description = strings.TrimSpace(s.Description)
			if s.Description == "" {
				s.Description = defaultStoreDescription
			}
		},
		Validate: func(s *models.Store) error {
			if s.Name == "" {
				return apperr.Validation("validation/store-name", "store name must not be empty")
			}
			return nil
		},

		Freeze: func(dst, src *models.Store) {
			dst.ID = src.ID
			dst.OwnerID = src.OwnerID
			dst.CreatedAt = src.CreatedAt
		},

		CanDelete: func(s *models.Store, identity string) error {
			if !guard.CanDeleteStore(*s, identity) {
				return apperr.Precondition("precondition/not-owner", "only the owning identity may delete a store")
			}
			return nil
		},
		// Deleting a store removes its products and logs in the same call:
		// no orphaned rows may reference a nonexistent store.
		Cascade: func(ctx context.Context, b *backend.Backend, s *models.Store) error {
			byStore := backend.Filter{Field: "store_id", Value: s.ID}
			if err := backend.DeleteWhere[models.Product](ctx, b, ProductsCollection, byStore); err != nil {
				return err
			}
			return backend.DeleteWhere[models.Log](ctx, b, LogsCollection, byStore)
		},

		StoreID: func(s *models.Store) string { return s.ID },

		CreatedLog: func(s *models.Store) string {
			return fmt.Sprintf("Created store: %s", s.Name)
		},
		UpdatedLog: func(s *models.Store) string {
			return fmt.Sprintf("Updated store: %s", s.Name)
		},
		// No deletion Log row: the cascade just removed the store's trail,
		// and a new row would orphan against the deleted store. The Kafka
		// event still records the deletion.
		DeletedLog: nil,

		EventName: "store",
		EventFields: func(s *models.Store) map[string]any {
			return map[string]any{"store_id": s.ID, "name": s.Name}
		},
	}
}

func ProductKind() Kind[models.Product] {
	return Kind[models.Product]{
		Collection: ProductsCollection,

		ID:         func(p *models.Product) string { return p.ID },
		SetID:      func(p *models.Product, id string) { p.ID = id },
		Owner:      func(p *models.Product) string { return p.OwnerID },
		SetOwner:   func(p *models.Product, id string) { p.OwnerID = id },
		SetCreated: func(p *models.Product, t time.Time) { p.CreatedAt = t },

		Normalize: func(p *models.Product) {
			p.DisplayName = strings.TrimSpace(p.DisplayName)
			if p.DisplayName == "" {
				p.DisplayName = strings.TrimSpace(p.Name)
			}
			p.Name = guard.NormalizeName(p.DisplayName)
		},
		Validate: func(p *models.Product) error {
			if p.Name == "" {
				return apperr.Validation("validation/product-name", "product name must not be empty")
			}
			if p.StoreID == "" {
				return apperr.Validation("validation/product-store", "product must reference a store")
			}
			if p.Price <= 0 {
				return apperr.Validation("validation/product-price", "price must be greater than zero")
			}
			return nil
		},

		DupeQuery: func(p *models.Product) *backend.Query {
			q := backend.Query{
				Collection: ProductsCollection,
				Filters: []backend.Filter{
					{Field: "store_id", Value: p.StoreID},
					{Field: "owner_id", Value: p.OwnerID},
					{Field: "name", Value: p.Name},
				},
			}
			return &q
		},
		Duplicate: func(existing []models.Product, candidate *models.Product, excludeID string) bool {
			return guard.IsDuplicateProductName(existing, *candidate, excludeID)
		},

		Freeze: func(dst, src *models.Product) {
			dst.ID = src.ID
			dst.OwnerID = src.OwnerID
			dst.StoreID = src.StoreID
			dst.CreatedAt = src.CreatedAt
		},

		CanDelete: func(p *models.Product, identity string) error {
			if p.OwnerID != identity {
				return apperr.Precondition("precondition/not-owner", "only the owner may delete this product")
			}
			if !guard.CanDeleteProduct(*p) {
				return apperr.Precondition("precondition/nonzero-quantity", "products can only be deleted at zero quantity")
			}
			return nil
		},

		StoreID: func(p *models.Product) string { return p.StoreID },

		CreatedLog: func(p *models.Product) string {
			return fmt.Sprintf("Added product: %s (Quantity: %d, Price: ₱%g)", p.DisplayName, p.Quantity, p.Price)
		},
		UpdatedLog: func(p *models.Product) string {
			return fmt.Sprintf("Updated product: %s (Quantity: %d, Price: ₱%g)", p.DisplayName, p.Quantity, p.Price)
		},
		DeletedLog: func(p *models.Product) string {
			return fmt.Sprintf("Deleted product: %s", p.DisplayName)
		},

		EventName: "product",
		EventFields: func(p *models.Product) map[string]any {
			return map[string]any{"product_id": p.ID, "store_id": p.StoreID, "name": p.DisplayName}
		},
	}
}
