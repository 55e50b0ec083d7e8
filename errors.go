package quiver

import (
	"errors"
	"fmt"

	"github.com/quiverdb/quiver/collection"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/store"
)

var (
	// ErrNotFound is returned when a record or collection is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownIndex is returned when a query names an index type that is
	// not attached to the target collection.
	ErrUnknownIndex = errors.New("unknown index type")

	// ErrInvalidK is returned when a query's k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidInput is returned for malformed payloads (missing or empty
	// embedding, a text update without a fresh embedding, an invalid id).
	ErrInvalidInput = errors.New("invalid input")
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// collection's established embedding dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes inner-package errors to the public error set.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, collection.ErrUnknownIndex) {
		return fmt.Errorf("%w: %w", ErrUnknownIndex, err)
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, index.ErrEmptyVector) || errors.Is(err, store.ErrInvalidID) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
