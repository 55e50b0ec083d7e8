// Package quiver is a single-node vector database. Records live as JSON
// files in a three-level namespace (library, document, chunk); chunk
// embeddings are served from in-memory indexes that are rebuilt from the
// record store on startup.
package quiver

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/quiverdb/quiver/collection"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/index/exact"
	"github.com/quiverdb/quiver/index/ivf"
	"github.com/quiverdb/quiver/index/nsw"
	"github.com/quiverdb/quiver/model"
	"github.com/quiverdb/quiver/store"
)

// Collection name constants used by Query routing and the REST surface.
const (
	CollectionLibraries = "libraries"
	CollectionDocuments = "documents"
	CollectionChunks    = "chunks"
)

// Options contains configuration options for a DB.
type Options struct {
	// Logger is used for warnings and lifecycle events. Defaults to no-op.
	Logger *Logger

	// ChunkIndexes maps index type tags to the indexes attached to the
	// chunk collection. Defaults to cosine, IVF and NSW with default
	// parameters.
	ChunkIndexes map[collection.IndexType]index.Index
}

// DefaultChunkIndexes returns the default index set: exact cosine, IVF
// and NSW, each with default parameters.
func DefaultChunkIndexes() map[collection.IndexType]index.Index {
	return map[collection.IndexType]index.Index{
		collection.IndexTypeCosine: exact.New(),
		collection.IndexTypeIVF:    ivf.New(),
		collection.IndexTypeNSW:    nsw.New(),
	}
}

// DB owns the three collections and enforces the containment hierarchy:
// every document references an extant library and every chunk an extant
// document at the moment of insertion, and deletes cascade downward.
type DB struct {
	dataDir string
	logger  *Logger

	libraries *collection.Collection[model.Library]
	documents *collection.Collection[model.Document]
	chunks    *collection.Collection[model.Chunk]
}

// QueryResult is one similarity hit resolved to its chunk payload.
type QueryResult struct {
	ID       string
	Text     string
	Score    float32
	Metadata model.Metadata
}

// New creates a DB rooted at dataDir, one subdirectory per collection.
// Call Open afterwards to rebuild indexes from disk.
func New(dataDir string, optFns ...func(o *Options)) (*DB, error) {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.ChunkIndexes == nil {
		opts.ChunkIndexes = DefaultChunkIndexes()
	}

	db := &DB{dataDir: dataDir, logger: opts.Logger}

	var err error
	if db.libraries, err = newCollection[model.Library](dataDir, CollectionLibraries, opts.Logger, nil); err != nil {
		return nil, err
	}
	if db.documents, err = newCollection[model.Document](dataDir, CollectionDocuments, opts.Logger, nil); err != nil {
		return nil, err
	}
	chunkItem := func(c model.Chunk) (index.Item, bool) {
		return index.Item{ID: c.ID, Vector: c.Embedding}, true
	}
	if db.chunks, err = newCollection[model.Chunk](dataDir, CollectionChunks, opts.Logger, chunkItem); err != nil {
		return nil, err
	}

	for typ, idx := range opts.ChunkIndexes {
		if err := db.chunks.AddIndex(typ, idx); err != nil {
			return nil, fmt.Errorf("attach %s index: %w", typ, err)
		}
	}

	return db, nil
}

func newCollection[T model.Record](dataDir, name string, logger *Logger, item collection.ItemFunc[T]) (*collection.Collection[T], error) {
	s, err := store.New(filepath.Join(dataDir, name))
	if err != nil {
		return nil, err
	}
	return collection.New(name, s, func(o *collection.Options[T]) {
		o.Item = item
		o.Logger = logger.WithCollection(name).Logger
	}), nil
}

// WithLogger sets the DB logger.
func WithLogger(l *Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithChunkIndexes replaces the default chunk index set.
func WithChunkIndexes(indexes map[collection.IndexType]index.Index) func(o *Options) {
	return func(o *Options) { o.ChunkIndexes = indexes }
}

// Open rebuilds every attached index from the record store. It is the
// explicit startup phase after process start.
func (db *DB) Open() error {
	start := time.Now()
	for _, rebuild := range []func() error{
		db.libraries.StartupRebuild,
		db.documents.StartupRebuild,
		db.chunks.StartupRebuild,
	} {
		if err := rebuild(); err != nil {
			return translateError(err)
		}
	}
	db.logger.Info("startup rebuild completed", "elapsed", time.Since(start))
	return nil
}

// DataDir returns the root directory of the record stores.
func (db *DB) DataDir() string { return db.dataDir }

// Libraries exposes the library collection.
func (db *DB) Libraries() *collection.Collection[model.Library] { return db.libraries }

// Documents exposes the document collection.
func (db *DB) Documents() *collection.Collection[model.Document] { return db.documents }

// Chunks exposes the chunk collection.
func (db *DB) Chunks() *collection.Collection[model.Chunk] { return db.chunks }

// CreateLibrary stores a new library. A missing id is generated;
// timestamps are set.
func (db *DB) CreateLibrary(lib model.Library) (model.Library, error) {
	if lib.ID == "" {
		lib.ID = model.NewID()
	}
	if db.libraries.Exists(lib.ID) {
		return model.Library{}, fmt.Errorf("%w: library %s", ErrAlreadyExists, lib.ID)
	}

	now := time.Now().UTC()
	lib.CreatedAt = now
	lib.UpdatedAt = now

	if err := db.libraries.Create(lib); err != nil {
		return model.Library{}, translateError(err)
	}
	return lib, nil
}

// GetLibrary retrieves a library by id.
func (db *DB) GetLibrary(id string) (model.Library, error) {
	lib, err := db.libraries.Get(id)
	return lib, translateError(err)
}

// ListLibraries returns all libraries.
func (db *DB) ListLibraries() ([]model.Library, error) {
	libs, err := db.libraries.List()
	return libs, translateError(err)
}

// UpdateLibrary applies a partial update, preserving id and created_at.
func (db *DB) UpdateLibrary(id string, upd model.LibraryUpdate) (model.Library, error) {
	lib, err := db.libraries.Get(id)
	if err != nil {
		return model.Library{}, translateError(err)
	}

	if upd.Name != nil {
		lib.Name = *upd.Name
	}
	if upd.Metadata != nil {
		lib.Metadata = upd.Metadata.Clone()
	}
	lib.UpdatedAt = time.Now().UTC()

	if err := db.libraries.Update(id, lib); err != nil {
		return model.Library{}, translateError(err)
	}
	return lib, nil
}

// DeleteLibrary removes a library, its documents and their chunks.
// Cascades are best-effort sequential; a child failure is logged and the
// cascade continues.
func (db *DB) DeleteLibrary(id string) error {
	if !db.libraries.Exists(id) {
		return fmt.Errorf("%w: library %s", ErrNotFound, id)
	}

	docs, err := db.documents.List()
	if err != nil {
		return translateError(err)
	}
	for _, doc := range docs {
		if doc.LibraryID != id {
			continue
		}
		if err := db.DeleteDocument(doc.ID); err != nil && !errors.Is(err, ErrNotFound) {
			db.logger.Warn("cascade delete document failed", "library", id, "document", doc.ID, "error", err)
		}
	}

	return translateError(db.libraries.Delete(id))
}

// CreateDocument stores a new document after checking its parent library.
func (db *DB) CreateDocument(doc model.Document) (model.Document, error) {
	if !db.libraries.Exists(doc.LibraryID) {
		return model.Document{}, fmt.Errorf("%w: library %s", ErrNotFound, doc.LibraryID)
	}
	if doc.ID == "" {
		doc.ID = model.NewID()
	}
	if db.documents.Exists(doc.ID) {
		return model.Document{}, fmt.Errorf("%w: document %s", ErrAlreadyExists, doc.ID)
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := db.documents.Create(doc); err != nil {
		return model.Document{}, translateError(err)
	}
	return doc, nil
}

// GetDocument retrieves a document by id.
func (db *DB) GetDocument(id string) (model.Document, error) {
	doc, err := db.documents.Get(id)
	return doc, translateError(err)
}

// ListDocuments returns all documents.
func (db *DB) ListDocuments() ([]model.Document, error) {
	docs, err := db.documents.List()
	return docs, translateError(err)
}

// UpdateDocument applies a partial update, preserving id, library and
// created_at.
func (db *DB) UpdateDocument(id string, upd model.DocumentUpdate) (model.Document, error) {
	doc, err := db.documents.Get(id)
	if err != nil {
		return model.Document{}, translateError(err)
	}

	if upd.Name != nil {
		doc.Name = *upd.Name
	}
	if upd.Metadata != nil {
		doc.Metadata = upd.Metadata.Clone()
	}
	doc.UpdatedAt = time.Now().UTC()

	if err := db.documents.Update(id, doc); err != nil {
		return model.Document{}, translateError(err)
	}
	return doc, nil
}

// DeleteDocument removes a document and all chunks referencing it.
func (db *DB) DeleteDocument(id string) error {
	if !db.documents.Exists(id) {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}

	chunks, err := db.chunks.List()
	if err != nil {
		return translateError(err)
	}
	for _, chunk := range chunks {
		if chunk.DocumentID != id {
			continue
		}
		if err := db.chunks.Delete(chunk.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			db.logger.Warn("cascade delete chunk failed", "document", id, "chunk", chunk.ID, "error", err)
		}
	}

	return translateError(db.documents.Delete(id))
}

// CreateChunk stores a new chunk after checking its parent document and
// that document's library. The embedding must already be computed; the
// collection layer never calls the embedding provider.
func (db *DB) CreateChunk(chunk model.Chunk) (model.Chunk, error) {
	doc, err := db.documents.Get(chunk.DocumentID)
	if err != nil {
		return model.Chunk{}, fmt.Errorf("%w: document %s", ErrNotFound, chunk.DocumentID)
	}
	if !db.libraries.Exists(doc.LibraryID) {
		return model.Chunk{}, fmt.Errorf("%w: library %s", ErrNotFound, doc.LibraryID)
	}
	if len(chunk.Embedding) == 0 {
		return model.Chunk{}, fmt.Errorf("%w: chunk embedding is required", ErrInvalidInput)
	}

	if chunk.ID == "" {
		chunk.ID = model.NewID()
	}
	if db.chunks.Exists(chunk.ID) {
		return model.Chunk{}, fmt.Errorf("%w: chunk %s", ErrAlreadyExists, chunk.ID)
	}

	chunk.LibraryID = doc.LibraryID
	now := time.Now().UTC()
	chunk.CreatedAt = now
	chunk.UpdatedAt = now

	if err := db.chunks.Create(chunk); err != nil {
		return model.Chunk{}, translateError(err)
	}
	return chunk, nil
}

// GetChunk retrieves a chunk by id.
func (db *DB) GetChunk(id string) (model.Chunk, error) {
	chunk, err := db.chunks.Get(id)
	return chunk, translateError(err)
}

// ListChunks returns all chunks.
func (db *DB) ListChunks() ([]model.Chunk, error) {
	chunks, err := db.chunks.List()
	return chunks, translateError(err)
}

// UpdateChunk applies a partial update. Moving a chunk to another document
// revalidates the new parent chain. Callers changing Text without an
// Embedding must re-embed before calling; the update is rejected otherwise.
func (db *DB) UpdateChunk(id string, upd model.ChunkUpdate) (model.Chunk, error) {
	chunk, err := db.chunks.Get(id)
	if err != nil {
		return model.Chunk{}, translateError(err)
	}

	if upd.DocumentID != nil {
		doc, err := db.documents.Get(*upd.DocumentID)
		if err != nil {
			return model.Chunk{}, fmt.Errorf("%w: document %s", ErrNotFound, *upd.DocumentID)
		}
		if !db.libraries.Exists(doc.LibraryID) {
			return model.Chunk{}, fmt.Errorf("%w: library %s", ErrNotFound, doc.LibraryID)
		}
		chunk.DocumentID = doc.ID
		chunk.LibraryID = doc.LibraryID
	}
	if upd.Text != nil {
		if upd.Embedding == nil {
			return model.Chunk{}, fmt.Errorf("%w: text update requires a fresh embedding", ErrInvalidInput)
		}
		chunk.Text = *upd.Text
	}
	if upd.Embedding != nil {
		chunk.Embedding = upd.Embedding
	}
	if upd.Metadata != nil {
		chunk.Metadata = upd.Metadata.Clone()
	}
	chunk.UpdatedAt = time.Now().UTC()

	if err := db.chunks.Update(id, chunk); err != nil {
		return model.Chunk{}, translateError(err)
	}
	return chunk, nil
}

// DeleteChunk removes a chunk.
func (db *DB) DeleteChunk(id string) error {
	if !db.chunks.Exists(id) {
		return fmt.Errorf("%w: chunk %s", ErrNotFound, id)
	}
	return translateError(db.chunks.Delete(id))
}

// Query runs a top-k similarity search over the named collection. Only the
// chunk collection carries indexes; querying the others reports the index
// as unknown. A non-nil filter restricts hits to chunks whose metadata
// contains every filter pair.
func (db *DB) Query(collectionName string, typ collection.IndexType, vector []float32, k int, filter model.Metadata) ([]QueryResult, error) {
	switch collectionName {
	case CollectionChunks:
	case CollectionLibraries, CollectionDocuments:
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, typ, collectionName)
	default:
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, collectionName)
	}

	var pred func(model.Chunk) bool
	if len(filter) > 0 {
		pred = func(c model.Chunk) bool { return c.Metadata.Matches(filter) }
	}

	hits, err := db.chunks.Search(typ, vector, k, pred)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]QueryResult, len(hits))
	for i, hit := range hits {
		results[i] = QueryResult{
			ID:       hit.Record.ID,
			Text:     hit.Record.Text,
			Score:    hit.Score,
			Metadata: hit.Record.Metadata,
		}
	}
	return results, nil
}

// Reset deletes every record in every collection and rebuilds the (now
// empty) indexes. Intended for tests and the /reset endpoint.
func (db *DB) Reset() error {
	for _, wipe := range []func() error{
		db.wipeChunks,
		db.wipeDocuments,
		db.wipeLibraries,
	} {
		if err := wipe(); err != nil {
			return translateError(err)
		}
	}
	return db.Open()
}

func (db *DB) wipeChunks() error {
	chunks, err := db.chunks.List()
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := db.chunks.Delete(c.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (db *DB) wipeDocuments() error {
	docs, err := db.documents.List()
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := db.documents.Delete(d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (db *DB) wipeLibraries() error {
	libs, err := db.libraries.List()
	if err != nil {
		return err
	}
	for _, l := range libs {
		if err := db.libraries.Delete(l.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}
