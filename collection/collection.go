// Package collection binds a record kind to its on-disk store and a set
// of named in-memory indexes, and coordinates concurrent access to both.
package collection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/model"
	"github.com/quiverdb/quiver/store"
)

// IndexType tags an attached index for strategy selection at query time.
type IndexType string

const (
	IndexTypeCosine IndexType = "cosine"
	IndexTypeIVF    IndexType = "ivf"
	IndexTypeNSW    IndexType = "nsw"
)

// ErrUnknownIndex is returned when a search names an index type that is
// not attached to the collection.
var ErrUnknownIndex = errors.New("unknown index type")

// ItemFunc extracts the indexable item from a record. It returns false
// for record kinds that carry no vector, in which case attached indexes
// are never notified.
type ItemFunc[T model.Record] func(T) (index.Item, bool)

// Result pairs a resolved record with its similarity score.
type Result[T model.Record] struct {
	Record T
	Score  float32
}

// Options contains configuration options for a collection.
type Options[T model.Record] struct {
	// Item extracts the indexable vector from a record. Nil means the
	// collection has nothing to index (libraries, documents).
	Item ItemFunc[T]

	// Logger receives degraded-consistency warnings. Nil discards them.
	Logger *slog.Logger
}

// Collection is the single entry point for CRUD and query over one record
// kind. A single readers-writer lock guards the store view and every
// attached index together: get/list/search take shared access, mutations
// and rebuilds take exclusive access. Callers never hold the lock across
// embedding calls; vectors arrive precomputed.
type Collection[T model.Record] struct {
	mu      sync.RWMutex
	name    string
	store   *store.Store
	indexes map[IndexType]index.Index
	item    ItemFunc[T]
	logger  *slog.Logger

	// dim is the embedding dimension established by the first indexed
	// insert, zero until then.
	dim int
}

// New creates a collection over the given store.
func New[T model.Record](name string, s *store.Store, optFns ...func(o *Options[T])) *Collection[T] {
	opts := Options[T]{}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Collection[T]{
		name:    name,
		store:   s,
		indexes: make(map[IndexType]index.Index),
		item:    opts.Item,
		logger:  opts.Logger,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// AddIndex attaches an index under the given type tag and rebuilds it from
// the current store contents.
func (c *Collection[T]) AddIndex(typ IndexType, idx index.Index) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.indexes[typ] = idx

	items, err := c.loadItems()
	if err != nil {
		return err
	}
	return idx.Rebuild(items)
}

// IndexTypes returns the tags of all attached indexes.
func (c *Collection[T]) IndexTypes() []IndexType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]IndexType, 0, len(c.indexes))
	for typ := range c.indexes {
		types = append(types, typ)
	}
	return types
}

// Create validates the record's dimension, writes it to the store and
// notifies every attached index. The store is mutated first: a failed
// write aborts with no index change, while an index failure after store
// success is logged and reconciled by the next rebuild.
func (c *Collection[T]) Create(rec T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, indexed, err := c.validate(rec)
	if err != nil {
		return err
	}

	if err := c.store.Put(rec.RecordID(), rec); err != nil {
		return err
	}
	if indexed {
		if c.dim == 0 {
			c.dim = len(item.Vector)
		}
		c.notifyAdd(item)
	}
	return nil
}

// Get retrieves a record by id.
func (c *Collection[T]) Get(id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.get(id)
}

// List returns all records in ascending id order.
func (c *Collection[T]) List() ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.list()
}

// Len returns the number of stored records.
func (c *Collection[T]) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.store.Len()
}

// Exists reports whether a record with the given id is stored.
func (c *Collection[T]) Exists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.store.Exists(id)
}

// Update rewrites an existing record and refreshes it in every attached
// index (remove followed by add). Updating an absent id fails with the
// store's not-found error.
func (c *Collection[T]) Update(id string, rec T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.store.Exists(id) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}

	item, indexed, err := c.validate(rec)
	if err != nil {
		return err
	}

	if err := c.store.Put(id, rec); err != nil {
		return err
	}
	if indexed {
		if c.dim == 0 {
			c.dim = len(item.Vector)
		}
		for _, idx := range c.indexes {
			idx.Remove(id)
		}
		c.notifyAdd(item)
	}
	return nil
}

// Delete removes the record from the store and from every attached index.
// Indexes tolerate absent ids, so delete is idempotent apart from the
// store's not-found report.
func (c *Collection[T]) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.Delete(id)
	for _, idx := range c.indexes {
		idx.Remove(id)
	}
	return err
}

// Search routes the query to the selected index, resolves hits against
// the store and post-filters. When a filter is supplied the index is
// overfetched (2k) to soften recall loss before truncation to k.
func (c *Collection[T]) Search(typ IndexType, query []float32, k int, filter func(T) bool) ([]Result[T], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.indexes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, typ)
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	fetch := k
	if filter != nil {
		fetch = 2 * k
	}

	hits, err := idx.Search(query, fetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result[T], 0, min(k, len(hits)))
	for _, hit := range hits {
		if len(results) == k {
			break
		}
		rec, err := c.get(hit.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if filter != nil && !filter(rec) {
			continue
		}
		results = append(results, Result[T]{Record: rec, Score: hit.Score})
	}
	return results, nil
}

// StartupRebuild loads every stored record and rebuilds all attached
// indexes from it, restoring the store/index consistency invariant after
// a cold start. Indexes rebuild in parallel.
func (c *Collection[T]) StartupRebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.loadItems()
	if err != nil {
		return err
	}

	c.dim = 0
	if len(items) > 0 {
		c.dim = len(items[0].Vector)
	}

	var g errgroup.Group
	for typ, idx := range c.indexes {
		typ, idx := typ, idx
		g.Go(func() error {
			if err := idx.Rebuild(items); err != nil {
				return fmt.Errorf("rebuild %s index: %w", typ, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Collection[T]) get(id string) (T, error) {
	var rec T
	if err := c.store.Get(id, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (c *Collection[T]) list() ([]T, error) {
	ids, err := c.store.List()
	if err != nil {
		return nil, err
	}

	recs := make([]T, 0, len(ids))
	for _, id := range ids {
		rec, err := c.get(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (c *Collection[T]) loadItems() ([]index.Item, error) {
	if c.item == nil {
		return nil, nil
	}

	recs, err := c.list()
	if err != nil {
		return nil, err
	}

	items := make([]index.Item, 0, len(recs))
	for _, rec := range recs {
		if item, ok := c.item(rec); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// validate extracts the indexable item and checks its dimension against
// the collection's established one, before any store write happens.
func (c *Collection[T]) validate(rec T) (index.Item, bool, error) {
	if c.item == nil {
		return index.Item{}, false, nil
	}
	item, ok := c.item(rec)
	if !ok {
		return index.Item{}, false, nil
	}
	if err := index.ValidateVector(c.dim, item.Vector); err != nil {
		return index.Item{}, false, err
	}
	return item, true, nil
}

func (c *Collection[T]) notifyAdd(item index.Item) {
	for typ, idx := range c.indexes {
		if err := idx.Add(item); err != nil {
			c.logger.Warn("index add failed, consistency degraded until next rebuild",
				"collection", c.name,
				"index", string(typ),
				"id", item.ID,
				"error", err,
			)
		}
	}
}
