// Package repository is the single mutation path for owned entities. One
// generic Repository drives every kind; the per-kind behavior (collection
// name, validation, uniqueness, guard rules, cascade, audit text) lives in
// an entity-kind descriptor instead of duplicated CRUD code.
//
// Every operation validates locally before any backend call, re-classifies
// backend failures into the apperr taxonomy, and on success appends one
// audit Log entry. Audit failures come back as a separate warning so callers
// can distinguish "mutation failed" from "mutation succeeded, trail did
// not".
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shelftrack/shelftrack/internal/apperr"
	"github.com/shelftrack/shelftrack/internal/audit"
	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/logging"
)

var errUnauthenticated = apperr.Auth("auth/unauthenticated", "sign in required")

// Kind describes one entity kind to the generic repository.
type Kind[T any] struct {
	Collection string

	ID         func(*T) string
	SetID      func(*T, string)
	Owner      func(*T) string
	SetOwner   func(*T, string)
	SetCreated func(*T, time.Time)

	// Normalize rewrites derived fields (trimming, lowercase name keys,
	// defaults) before validation.
	Normalize func(*T)
	Validate  func(*T) error

	// DupeQuery fetches the candidates for a uniqueness check; Duplicate
	// decides the collision. Both nil when the kind has no uniqueness rule.
	DupeQuery func(*T) *backend.Query
	Duplicate func(existing []T, candidate *T, excludeID string) bool

	// Freeze restores immutable fields on update: dst is the mutated
	// entity, src the stored original.
	Freeze func(dst, src *T)

	CanDelete func(e *T, identity string) error
	// Cascade removes dependents before the entity itself is deleted.
	Cascade func(ctx context.Context, b *backend.Backend, e *T) error

	StoreID func(*T) string

	CreatedLog func(*T) string
	UpdatedLog func(*T) string
	DeletedLog func(*T) string

	EventName   string
	EventFields func(*T) map[string]any
}

// Indexer mirrors entities into the search index. Optional and best-effort.
type Indexer[T any] interface {
	Index(ctx context.Context, e *T) error
	Remove(ctx context.Context, id string) error
}

type Repository[T any] struct {
	Backend *backend.Backend
	Kind    Kind[T]
	Audit   *audit.Logger
	Indexer Indexer[T]
}

func New[T any](b *backend.Backend, kind Kind[T], aud *audit.Logger) *Repository[T] {
	return &Repository[T]{Backend: b, Kind: kind, Audit: aud}
}

func classify(err error) error {
	if errors.Is(err, backend.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "not-found", "document not found", err)
	}
	return apperr.Network("network-error", "backend operation failed", err)
}

// Create inserts e on behalf of identity. The entity's id, owner and
// creation time are assigned here; any values the caller set are replaced.
func (r *Repository[T]) Create(ctx context.Context, identity string, e *T) (warn, err error) {
	if identity == "" {
		return nil, errUnauthenticated
	}

	r.Kind.SetOwner(e, identity)
	if r.Kind.Normalize != nil {
		r.Kind.Normalize(e)
	}
	if err := r.Kind.Validate(e); err != nil {
		return nil, err
	}

	if r.Kind.DupeQuery != nil {
		existing, err := backend.GetAll[T](ctx, r.Backend, *r.Kind.DupeQuery(e))
		if err != nil {
			return nil, classify(err)
		}
		if r.Kind.Duplicate(existing, e, "") {
			return nil, apperr.Conflict("conflict/duplicate-name", "a product with this name already exists in this store")
		}
	}

	r.Kind.SetID(e, uuid.NewString())
	r.Kind.SetCreated(e, time.Now())

	if err := backend.Create(ctx, r.Backend, r.Kind.Collection, e); err != nil {
		return nil, classify(err)
	}

	r.index(ctx, e)
	warn = r.record(ctx, identity, e, r.Kind.CreatedLog)
	r.emit(ctx, identity, e, r.Kind.EventName+"_created")
	return warn, nil
}

// Update fetches the entity, applies the caller's mutation, restores
// immutable fields and persists the result. Only the owner may update.
func (r *Repository[T]) Update(ctx context.Context, identity, id string, apply func(*T) error) (updated *T, warn, err error) {
	if identity == "" {
		return nil, nil, errUnauthenticated
	}

	stored, err := backend.GetOne[T](ctx, r.Backend, r.Kind.Collection, id)
	if err != nil {
		return nil, nil, classify(err)
	}
	if r.Kind.Owner(stored) != identity {
		return nil, nil, apperr.Precondition("precondition/not-owner", "only the owner may modify this entity")
	}

	next := *stored
	if err := apply(&next); err != nil {
		return nil, nil, err
	}
	if r.Kind.Freeze != nil {
		r.Kind.Freeze(&next, stored)
	}
	if r.Kind.Normalize != nil {
		r.Kind.Normalize(&next)
	}
	if err := r.Kind.Validate(&next); err != nil {
		return nil, nil, err
	}

	if r.Kind.DupeQuery != nil {
		existing, err := backend.GetAll[T](ctx, r.Backend, *r.Kind.DupeQuery(&next))
		if err != nil {
			return nil, nil, classify(err)
		}
		if r.Kind.Duplicate(existing, &next, id) {
			return nil, nil, apperr.Conflict("conflict/duplicate-name", "a product with this name already exists in this store")
		}
	}

	if err := backend.Put(ctx, r.Backend, r.Kind.Collection, id, &next); err != nil {
		return nil, nil, classify(err)
	}

	r.index(ctx, &next)
	warn = r.record(ctx, identity, &next, r.Kind.UpdatedLog)
	r.emit(ctx, identity, &next, r.Kind.EventName+"_updated")
	return &next, warn, nil
}

// Delete enforces the kind's guard rules, runs its cascade and removes the
// entity.
func (r *Repository[T]) Delete(ctx context.Context, identity, id string) (warn, err error) {
	if identity == "" {
		return nil, errUnauthenticated
	}

	stored, err := backend.GetOne[T](ctx, r.Backend, r.Kind.Collection, id)
	if err != nil {
		return nil, classify(err)
	}

	if err := r.Kind.CanDelete(stored, identity); err != nil {
		return nil, err
	}

	if r.Kind.Cascade != nil {
		if err := r.Kind.Cascade(ctx, r.Backend, stored); err != nil {
			return nil, classify(err)
		}
	}

	if err := backend.Delete[T](ctx, r.Backend, r.Kind.Collection, id); err != nil {
		return nil, classify(err)
	}

	if r.Indexer != nil {
		if err := r.Indexer.Remove(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("index_remove_failed", "collection", r.Kind.Collection, "id", id, "error", err)
		}
	}
	warn = r.record(ctx, identity, stored, r.Kind.DeletedLog)
	r.emit(ctx, identity, stored, r.Kind.EventName+"_deleted")
	return warn, nil
}

// Get returns the entity only to its owner; anything else is not found.
func (r *Repository[T]) Get(ctx context.Context, identity, id string) (*T, error) {
	stored, err := backend.GetOne[T](ctx, r.Backend, r.Kind.Collection, id)
	if err != nil {
		return nil, classify(err)
	}
	if r.Kind.Owner(stored) != identity {
		return nil, apperr.NotFound("not-found", "document not found")
	}
	return stored, nil
}

func (r *Repository[T]) List(ctx context.Context, q backend.Query) ([]T, error) {
	items, err := backend.GetAll[T](ctx, r.Backend, q)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (r *Repository[T]) index(ctx context.Context, e *T) {
	if r.Indexer == nil {
		return
	}
	if err := r.Indexer.Index(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("index_write_failed", "collection", r.Kind.Collection, "error", err)
	}
}

func (r *Repository[T]) record(ctx context.Context, identity string, e *T, text func(*T) string) error {
	if text == nil {
		return nil
	}
	action := text(e)
	if action == "" {
		return nil
	}
	if err := r.Audit.Record(ctx, identity, r.Kind.StoreID(e), action); err != nil {
		return apperr.Network("warning/audit-append", "mutation succeeded but audit log append failed", err)
	}
	return nil
}

func (r *Repository[T]) emit(ctx context.Context, identity string, e *T, eventType string) {
	fields := map[string]any{}
	if r.Kind.EventFields != nil {
		fields = r.Kind.EventFields(e)
	}
	r.Audit.Emit(ctx, eventType, identity, fields)
}
