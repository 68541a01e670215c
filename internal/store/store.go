// Package store holds the authoritative in-memory credential state. It is the
// single source of truth; every other component works with IDs or copies.
package store

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/brokerlink/internal/errs"
	"github.com/and161185/brokerlink/internal/model"
)

// Mutator reads the current record and produces the next one in place.
// Returning an error aborts the mutation without committing anything.
type Mutator func(c *model.Credential) error

// Store is an in-memory credential map with atomic per-record mutation.
// All mutations for a given ID are serialized under the store lock; mutators
// must be fast and never block on I/O.
type Store struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*model.Credential
}

// New creates an empty store.
func New() *Store {
	return &Store{byID: make(map[uuid.UUID]*model.Credential)}
}

// Warm seeds the store from previously persisted records. Duplicate IDs are
// rejected the same way Insert rejects them.
func (s *Store) Warm(creds []model.Credential) error {
	for _, c := range creds {
		if _, err := s.Insert(c); err != nil {
			return fmt.Errorf("warm %s: %w", c.ID, err)
		}
	}
	return nil
}

// Get returns a copy of the credential or ErrNotFound.
func (s *Store) Get(id uuid.UUID) (model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Credential{}, errs.ErrNotFound
	}
	return c.Clone(), nil
}

// List returns copies of all credentials in unspecified order; ordering is
// the query view's concern.
func (s *Store) List() []model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Credential, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c.Clone())
	}
	return out
}

// Insert adds a new credential after checking record invariants and ID
// uniqueness.
func (s *Store) Insert(c model.Credential) (uuid.UUID, error) {
	if err := c.CheckInvariants(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrInvariantViolation, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[c.ID]; exists {
		return uuid.Nil, errs.ErrAlreadyExists
	}
	cp := c.Clone()
	s.byID[c.ID] = &cp
	return c.ID, nil
}

// Update applies fn to a copy of the current record and commits the result
// only if fn succeeds and invariants hold. On any error the stored record is
// untouched. Returns a copy of the committed record.
func (s *Store) Update(id uuid.UUID, fn Mutator) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return model.Credential{}, errs.ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Credential{}, err
	}
	if next.ID != id {
		return model.Credential{}, fmt.Errorf("%w: id is immutable", errs.ErrInvariantViolation)
	}
	if err := next.CheckInvariants(); err != nil {
		return model.Credential{}, fmt.Errorf("%w: %v", errs.ErrInvariantViolation, err)
	}
	s.byID[id] = &next
	return next.Clone(), nil
}

// Delete removes the credential or returns ErrNotFound.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
