// Package backend is the data boundary: typed CRUD over gorm plus a change
// hub that replays full query snapshots to subscribers whenever a collection
// mutates. Snapshots are always re-materialized from the database — the hub
// never hand-merges deltas, so every delivery costs one query over the
// collection. That is the intended tradeoff at this scale.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("backend: document not found")

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

type Query struct {
	Collection string
	Filters    []Filter
	Order      *Order
}

func (q Query) apply(tx *gorm.DB) *gorm.DB {
	tx = tx.Table(q.Collection)
	for _, f := range q.Filters {
		tx = tx.Where(fmt.Sprintf("%s = ?", f.Field), f.Value)
	}
	if q.Order != nil {
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("%s %s", q.Order.Field, dir))
	}
	return tx
}

type Backend struct {
	db *gorm.DB

	mu   sync.Mutex
	subs map[string]map[int]*subscriber
	next int
}

func New(db *gorm.DB) *Backend {
	return &Backend{db: db, subs: make(map[string]map[int]*subscriber)}
}

func (b *Backend) DB() *gorm.DB { return b.db }

func (b *Backend) notify(collection string) {
	b.mu.Lock()
	for _, s := range b.subs[collection] {
		s.wake()
	}
	b.mu.Unlock()
}

func GetAll[T any](ctx context.Context, b *Backend, q Query) ([]T, error) {
	var items []T
	if err := q.apply(b.db.WithContext(ctx)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func GetOne[T any](ctx context.Context, b *Backend, collection, id string) (*T, error) {
	var item T
	err := b.db.WithContext(ctx).Table(collection).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func Create[T any](ctx context.Context, b *Backend, collection string, doc *T) error {
	if err := b.db.WithContext(ctx).Table(collection).Create(doc).Error; err != nil {
		return err
	}
	b.notify(collection)
	return nil
}

// Put overwrites every field of an existing document. The document's primary
// key must already be set; a missing row reports ErrNotFound.
func Put[T any](ctx context.Context, b *Backend, collection, id string, doc *T) error {
	res := b.db.WithContext(ctx).Table(collection).Where("id = ?", id).Select("*").Updates(doc)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	b.notify(collection)
	return nil
}

func Delete[T any](ctx context.Context, b *Backend, collection, id string) error {
	res := b.db.WithContext(ctx).Table(collection).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	b.notify(collection)
	return nil
}

// DeleteWhere removes every matching row. Used by cascade deletion; deleting
// zero rows is not an error here.
func DeleteWhere[T any](ctx context.Context, b *Backend, collection string, filters ...Filter) error {
	tx := b.db.WithContext(ctx).Table(collection)
	for _, f := range filters {
		tx = tx.Where(fmt.Sprintf("%s = ?", f.Field), f.Value)
	}
	if err := tx.Delete(new(T)).Error; err != nil {
		return err
	}
	b.notify(collection)
	return nil
}

type subscriber struct {
	// deliver is held while a callback runs. Unsubscribe acquires it after
	// marking the subscriber closed, so once Unsubscribe returns no further
	// callback can fire.
	deliver sync.Mutex
	closed  bool
	kick    chan struct{}
	stop    chan struct{}
}

func (s *subscriber) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Subscribe registers a live query. The current snapshot is delivered once
// immediately, then again after every committed change to the collection.
// Bursts of changes coalesce into a single re-query. The returned function
// cancels the subscription; it is safe to call more than once.
func Subscribe[T any](b *Backend, q Query, onSnapshot func([]T), onError func(error)) func() {
	s := &subscriber{kick: make(chan struct{}, 1), stop: make(chan struct{})}

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[q.Collection] == nil {
		b.subs[q.Collection] = make(map[int]*subscriber)
	}
	b.subs[q.Collection][id] = s
	b.mu.Unlock()

	s.wake()

	go func() {
		for {
			select {
			case <-s.stop:
				return
			case <-s.kick:
			}
			items, err := GetAll[T](context.Background(), b, q)
			s.deliver.Lock()
			if s.closed {
				s.deliver.Unlock()
				return
			}
			if err != nil {
				onError(err)
			} else {
				onSnapshot(items)
			}
			s.deliver.Unlock()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[q.Collection], id)
			b.mu.Unlock()
			close(s.stop)
			s.deliver.Lock()
			s.closed = true
			s.deliver.Unlock()
		})
	}
}
