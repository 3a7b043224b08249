// Package guard holds the pure mutation-policy rules. Nothing here touches
// the database: callers fetch whatever state a rule needs and pass it in,
// which keeps the rules unit-testable without a backend.
package guard

import (
	"strings"

	"github.com/shelftrack/shelftrack/internal/models"
)

// NormalizeName produces the uniqueness key for a product name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CanDeleteStore permits deletion only by the owning identity.
func CanDeleteStore(store models.Store, identity string) bool {
	return store.OwnerID == identity
}

// CanDeleteProduct permits deletion only once quantity has been drawn down
// to zero.
func CanDeleteProduct(product models.Product) bool {
	return product.Quantity == 0
}

// IsDuplicateProductName reports whether candidate collides with any existing
// product in the same (store, owner) scope, ignoring the row identified by
// excludeID so an update does not collide with itself.
func IsDuplicateProductName(existing []models.Product, candidate models.Product, excludeID string) bool {
	name := NormalizeName(candidate.Name)
	if name == "" {
		name = NormalizeName(candidate.DisplayName)
	}
	for _, p := range existing {
		if p.ID == excludeID {
			continue
		}
		if p.StoreID != candidate.StoreID || p.OwnerID != candidate.OwnerID {
			continue
		}
		if NormalizeName(p.Name) == name {
			return true
		}
	}
	return false
}
