package auth

import (
	"context"
	"sync"
	"time"
)

// Principal is a registered identity with a permission set.
type Principal struct {
	ID          string
	Permissions []string
	Active      bool
	CreatedAt   time.Time
}

func (p *Principal) clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.Permissions = clonePermissions(p.Permissions)
	return &c
}

// PrincipalStore provides storage for principals.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Ownership: returned principals are copies; mutating them has no effect.
// - Errors: Get returns ErrPrincipalNotFound when the id is unknown.
type PrincipalStore interface {
	Get(ctx context.Context, id string) (*Principal, error)
	Put(ctx context.Context, p *Principal) error
	SetPermissions(ctx context.Context, id string, perms []string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// MemoryPrincipalStore is an in-memory principal store.
type MemoryPrincipalStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal
}

// NewMemoryPrincipalStore creates a new in-memory principal store.
func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{
		principals: make(map[string]*Principal),
	}
}

// Get returns the principal with the given id.
func (s *MemoryPrincipalStore) Get(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return p.clone(), nil
}

// Put inserts or replaces a principal.
func (s *MemoryPrincipalStore) Put(_ context.Context, p *Principal) error {
	if p == nil || p.ID == "" {
		return ErrInvalidPrincipal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.ID] = p.clone()
	return nil
}

// SetPermissions replaces the permission set of a principal.
func (s *MemoryPrincipalStore) SetPermissions(_ context.Context, id string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Permissions = normalizePermissions(perms)
	return nil
}

// SetActive activates or deactivates a principal.
func (s *MemoryPrincipalStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Active = active
	return nil
}

// Ensure MemoryPrincipalStore implements PrincipalStore
var _ PrincipalStore = (*MemoryPrincipalStore)(nil)
