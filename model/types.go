// Package model defines the record types stored by a quiver database.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Metadata holds scalar key/value annotations attached to a record.
// Values are restricted by convention to strings, numbers and booleans so
// that records round-trip through JSON unchanged.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matches reports whether every key/value pair of want is present in m.
// Numeric values are compared after normalization to float64, since JSON
// decoding produces float64 for all numbers.
func (m Metadata) Matches(want Metadata) bool {
	for k, v := range want {
		got, ok := m[k]
		if !ok {
			return false
		}
		if !scalarEqual(got, v) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Record is the common contract of all stored record types.
type Record interface {
	RecordID() string
}

// NewID generates a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// Library is the root of the containment hierarchy. It groups documents
// and carries only metadata of its own.
type Library struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l Library) RecordID() string { return l.ID }

// Document groups chunks within a library. Documents do not embed their
// chunks; chunks reference their parent by DocumentID.
type Document struct {
	ID        string    `json:"id"`
	LibraryID string    `json:"library_id"`
	Name      string    `json:"name"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d Document) RecordID() string { return d.ID }

// Chunk is the smallest indexed unit: a piece of text together with its
// embedding vector and metadata.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	LibraryID  string    `json:"library_id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c Chunk) RecordID() string { return c.ID }

// LibraryUpdate describes a partial update to a library.
// Nil fields keep their stored values.
type LibraryUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// DocumentUpdate describes a partial update to a document.
type DocumentUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// ChunkUpdate describes a partial update to a chunk. When Text changes and
// Embedding is nil, the caller is expected to re-embed before applying.
type ChunkUpdate struct {
	Text       *string   `json:"text,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	DocumentID *string   `json:"document_id,omitempty"`
}
