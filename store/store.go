// Package store persists records as individual JSON files in a directory,
// one directory per record kind.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quiverdb/quiver/codec"
	"github.com/quiverdb/quiver/internal/fs"
)

const ext = ".json"

var (
	// ErrNotFound is returned when no record exists for the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidID is returned for empty ids or ids that would escape the
	// store directory.
	ErrInvalidID = errors.New("invalid record id")
)

// Options contains configuration options for a store.
type Options struct {
	// FS is the file system implementation. Defaults to the local file system.
	FS fs.FileSystem

	// Codec encodes and decodes record payloads. Defaults to JSON.
	Codec codec.Codec

	// FileMode is the permission mode for record files.
	FileMode os.FileMode
}

// DefaultOptions contains the default configuration options for a store.
var DefaultOptions = Options{
	FS:       fs.Default,
	Codec:    codec.Default,
	FileMode: 0o644,
}

// Store is a directory of {id}.json record files.
//
// Store performs no locking of its own; callers serialize mutations
// (the collection holds a readers-writer lock around every operation).
type Store struct {
	dir  string
	opts Options
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}

	return &Store{dir: dir, opts: opts}, nil
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

// Put serializes the payload and writes it atomically to {id}.json,
// overwriting any existing record with the same id.
func (s *Store) Put(id string, payload any) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	data, err := s.opts.Codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	if err := fs.WriteFileAtomic(s.opts.FS, path, data, s.opts.FileMode); err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	return nil
}

// Get reads the record with the given id and decodes it into out.
func (s *Store) Get(id string, out any) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	data, err := s.opts.FS.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("read record %s: %w", id, err)
	}

	if err := s.opts.Codec.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	return nil
}

// Delete unlinks the record file. Deleting an absent id returns ErrNotFound;
// callers that want idempotent semantics check for it.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := s.opts.FS.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a record with the given id is present.
func (s *Store) Exists(id string) bool {
	path, err := s.path(id)
	if err != nil {
		return false
	}
	_, err = s.opts.FS.Stat(path)
	return err == nil
}

// List enumerates record ids by scanning filenames. Files without the
// .json extension (including half-written temp files) are ignored.
// Ids are returned in ascending order.
func (s *Store) List() ([]string, error) {
	entries, err := s.opts.FS.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list store dir %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)

	return ids, nil
}

// Len returns the number of records currently stored.
func (s *Store) Len() (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+ext), nil
}
