package state

import (
	"context"
	"fmt"
	"sync"
)

// Backend persists a whole Document.
type Backend interface {
	// Read returns the stored document, or nil if nothing was stored yet
	Read(ctx context.Context) (*Document, error)

	// Write replaces the stored document
	Write(ctx context.Context, doc *Document) error

	// Close releases resources
	Close() error
}

// Store holds the process-wide document in memory and serializes every
// mutation through the backend before it becomes visible.
type Store struct {
	mu      sync.RWMutex
	doc     *Document
	backend Backend
}

// Open loads the document from backend, defaulting it if absent.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	doc, err := backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	doc.normalize()

	return &Store{doc: doc, backend: backend}, nil
}

// View runs fn against the current document under a read lock.
// fn must not retain or modify the document.
func (s *Store) View(fn func(d *Document)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.doc)
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Mutate applies fn to a copy of the document and flushes it. The in-memory
// document is replaced only after the write succeeds, so a failed flush
// leaves state exactly as it was. An error returned by fn aborts the
// mutation without writing.
func (s *Store) Mutate(ctx context.Context, fn func(d *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.backend.Write(ctx, next); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}
	s.doc = next
	return nil
}

// Flush rewrites the current document.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Write(ctx, s.doc); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// NewBackend builds the backend named by driver.
func NewBackend(ctx context.Context, driver, path, dsn string) (Backend, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteBackend(path)
	case "file":
		return NewFileBackend(path)
	case "postgres":
		return NewPostgresBackend(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
