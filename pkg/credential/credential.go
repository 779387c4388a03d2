// Package credential persists the API access token between invocations.
//
// The credential is two strings, the token and its type. Presence of the
// token denotes an authenticated session.
package credential

import (
	"context"
	"sync"
)

// DefaultTokenType is used when the server does not return a token type.
const DefaultTokenType = "bearer"

// Credential is the persisted access token
type Credential struct {
	Token     string `json:"token,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// Present reports whether a token is stored
func (c Credential) Present() bool {
	return c.Token != ""
}

// Type returns the token type, defaulting to bearer
func (c Credential) Type() string {
	if c.TokenType == "" {
		return DefaultTokenType
	}
	return c.TokenType
}

// Store loads, saves and clears the persisted credential
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the credential in process memory. Used by tests and by
// gateway deployments that do not persist sessions.
type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
}

// NewMemoryStore creates a memory store seeded with c
func NewMemoryStore(c Credential) *MemoryStore {
	return &MemoryStore{cred: c}
}

func (m *MemoryStore) Load(_ context.Context) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred, nil
}

func (m *MemoryStore) Save(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = c
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	return nil
}
