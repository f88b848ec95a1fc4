package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix prefixes every plaintext API key.
const APIKeyPrefix = "bok_"

const secretBytes = 32

// Credential is a stored API key. The plaintext secret is never kept.
type Credential struct {
	ID          string
	PrincipalID string
	Label       string
	Hash        []byte
	CreatedAt   time.Time
	LastUsedAt  time.Time
	Active      bool
}

func (c *Credential) clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Hash = append([]byte(nil), c.Hash...)
	return &cp
}

// CredentialStore provides storage for credentials.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get returns ErrCredentialNotFound when the id is unknown.
type CredentialStore interface {
	Get(ctx context.Context, id string) (*Credential, error)
	Put(ctx context.Context, c *Credential) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*Credential, error)
}

// MemoryCredentialStore is an in-memory credential store.
type MemoryCredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		credentials: make(map[string]*Credential),
	}
}

// Get retrieves a credential by id.
func (s *MemoryCredentialStore) Get(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[id]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return c.clone(), nil
}

// Put inserts or replaces a credential.
func (s *MemoryCredentialStore) Put(_ context.Context, c *Credential) error {
	if c == nil || c.ID == "" {
		return errors.New("auth: credential id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.ID] = c.clone()
	return nil
}

// TouchLastUsed records a successful verification. Last write wins.
func (s *MemoryCredentialStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return ErrCredentialNotFound
	}
	c.LastUsedAt = at
	return nil
}

// Deactivate marks a credential inactive.
func (s *MemoryCredentialStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok {
		return ErrCredentialNotFound
	}
	c.Active = false
	return nil
}

// ListByPrincipal returns the credentials owned by a principal, oldest first.
func (s *MemoryCredentialStore) ListByPrincipal(_ context.Context, principalID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.credentials {
		if c.PrincipalID == principalID {
			out = append(out, c.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CredentialConfig configures the credential service.
type CredentialConfig struct {
	// Cost is the bcrypt work factor.
	// Default: bcrypt.DefaultCost
	Cost int

	// Now overrides the clock (tests).
	Now func() time.Time
}

// APIKey is the result of the credential administration interface. Key is
// the plaintext and is returned exactly once.
type APIKey struct {
	Key          string
	CredentialID string
	PrincipalID  string
	Permissions  []string
	CreatedAt    time.Time
}

// CredentialService issues and verifies API key credentials.
type CredentialService struct {
	config      CredentialConfig
	principals  PrincipalStore
	credentials CredentialStore
	dummyHash   []byte
}

// NewCredentialService creates a credential service.
func NewCredentialService(config CredentialConfig, principals PrincipalStore, credentials CredentialStore) *CredentialService {
	if config.Cost == 0 {
		config.Cost = bcrypt.DefaultCost
	}
	if config.Cost < bcrypt.MinCost {
		config.Cost = bcrypt.MinCost
	}
	if config.Cost > bcrypt.MaxCost {
		config.Cost = bcrypt.MaxCost
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	// Compared against when the key id is unknown so misses cost the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("botops-dummy-secret"), config.Cost)
	return &CredentialService{
		config:      config,
		principals:  principals,
		credentials: credentials,
		dummyHash:   dummy,
	}
}

// Principals returns the principal store backing the service.
func (s *CredentialService) Principals() PrincipalStore {
	return s.principals
}

// CreateCredential generates a new API key for an existing principal.
// The plaintext key is returned once and never stored.
func (s *CredentialService) CreateCredential(ctx context.Context, principalID, label string) (string, *Credential, error) {
	if _, err := s.principals.Get(ctx, principalID); err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", nil, ErrPrincipalNotFound
		}
		return "", nil, fmt.Errorf("auth: lookup principal: %w", err)
	}

	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.config.Cost)
	if err != nil {
		return "", nil, fmt.Errorf("auth: hash secret: %w", err)
	}

	cred := &Credential{
		ID:          ulid.Make().String(),
		PrincipalID: principalID,
		Label:       strings.TrimSpace(label),
		Hash:        hash,
		CreatedAt:   s.config.Now().UTC(),
		Active:      true,
	}
	if err := s.credentials.Put(ctx, cred); err != nil {
		return "", nil, fmt.Errorf("auth: store credential: %w", err)
	}

	stored := cred.clone()
	stored.Hash = nil
	return APIKeyPrefix + cred.ID + "_" + secret, stored, nil
}

// VerifyCredential checks a plaintext key and returns the owning principal
// and its current permissions. LastUsedAt is updated on success.
func (s *CredentialService) VerifyCredential(ctx context.Context, plaintext string) (string, []string, error) {
	id, secret, ok := parseAPIKey(plaintext)
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	cred, err := s.credentials.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("auth: lookup credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword(cred.Hash, []byte(secret)) != nil || !cred.Active {
		return "", nil, ErrInvalidCredentials
	}

	principal, err := s.principals.Get(ctx, cred.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("auth: lookup principal: %w", err)
	}
	if !principal.Active {
		return "", nil, ErrInvalidCredentials
	}

	if err := s.credentials.TouchLastUsed(ctx, cred.ID, s.config.Now().UTC()); err != nil {
		return "", nil, fmt.Errorf("auth: touch credential: %w", err)
	}
	return principal.ID, principal.Permissions, nil
}

// RevokeCredential deactivates a credential.
func (s *CredentialService) RevokeCredential(ctx context.Context, credentialID string) error {
	return s.credentials.Deactivate(ctx, credentialID)
}

// ListCredentials returns a principal's credentials without hashes.
func (s *CredentialService) ListCredentials(ctx context.Context, principalID string) ([]*Credential, error) {
	creds, err := s.credentials.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	for _, c := range creds {
		c.Hash = nil
	}
	return creds, nil
}

// CreateAPIKey registers the principal (or replaces its permissions) and
// issues a new key for it.
func (s *CredentialService) CreateAPIKey(ctx context.Context, principalID string, permissions []string) (*APIKey, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, ErrInvalidPrincipal
	}
	perms := normalizePermissions(permissions)

	_, err := s.principals.Get(ctx, principalID)
	switch {
	case errors.Is(err, ErrPrincipalNotFound):
		err = s.principals.Put(ctx, &Principal{
			ID:          principalID,
			Permissions: perms,
			Active:      true,
			CreatedAt:   s.config.Now().UTC(),
		})
	case err == nil:
		err = s.principals.SetPermissions(ctx, principalID, perms)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: register principal: %w", err)
	}

	key, cred, err := s.CreateCredential(ctx, principalID, "api-key")
	if err != nil {
		return nil, err
	}
	return &APIKey{
		Key:          key,
		CredentialID: cred.ID,
		PrincipalID:  principalID,
		Permissions:  clonePermissions(perms),
		CreatedAt:    cred.CreatedAt,
	}, nil
}

// parseAPIKey splits "bok_<id>_<secret>". The id never contains '_'.
func parseAPIKey(plaintext string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(plaintext), APIKeyPrefix)
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, "_")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// Ensure MemoryCredentialStore implements CredentialStore
var _ CredentialStore = (*MemoryCredentialStore)(nil)
