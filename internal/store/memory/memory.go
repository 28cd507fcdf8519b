// Package memory implementa los repositorios en memoria.
// Es el driver por defecto para desarrollo y el doble de test del service.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authcore/internal/domain/repository"
)

// Store guarda principals y refresh records en maps protegidos por mutex.
type Store struct {
	mu         sync.RWMutex
	principals map[string]*repository.Principal // id -> principal
	byEmail    map[string]string                // lower(email) -> id
	refresh    map[string]*repository.RefreshRecord
	byHash     map[string]string // token_hash -> id
}

func New() *Store {
	return &Store{
		principals: make(map[string]*repository.Principal),
		byEmail:    make(map[string]string),
		refresh:    make(map[string]*repository.RefreshRecord),
		byHash:     make(map[string]string),
	}
}

func (s *Store) Principals() repository.PrincipalRepository { return (*principalRepo)(s) }
func (s *Store) Refresh() repository.RefreshRepository      { return (*refreshRepo)(s) }

func (s *Store) Close() {}

// ─── principals ───

type principalRepo Store

func clonePrincipal(p *repository.Principal) *repository.Principal {
	cp := *p
	cp.Roles = append([]string(nil), p.Roles...)
	if p.TotpLastUsedCounter != nil {
		v := *p.TotpLastUsedCounter
		cp.TotpLastUsedCounter = &v
	}
	if p.LastLoginAt != nil {
		v := *p.LastLoginAt
		cp.LastLoginAt = &v
	}
	if p.DisabledAt != nil {
		v := *p.DisabledAt
		cp.DisabledAt = &v
	}
	return &cp
}

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*repository.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(r.principals[id]), nil
}

func (r *principalRepo) GetByID(ctx context.Context, id string) (*repository.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *principalRepo) Create(ctx context.Context, input repository.CreatePrincipalInput) (*repository.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(input.Email)
	if _, exists := r.byEmail[key]; exists {
		return nil, repository.ErrConflict
	}
	p := &repository.Principal{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		Roles:        append([]string(nil), input.Roles...),
		CreatedAt:    time.Now().UTC(),
	}
	r.principals[p.ID] = p
	r.byEmail[key] = p.ID
	return clonePrincipal(p), nil
}

func (r *principalRepo) AddRole(ctx context.Context, id, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, have := range p.Roles {
		if have == role {
			return nil
		}
	}
	p.Roles = append(p.Roles, role)
	return nil
}

func (r *principalRepo) UpdateTotp(ctx context.Context, id string, input repository.UpdateTotpInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	if input.Secret != nil {
		p.TotpSecret = *input.Secret
	}
	if input.Enabled != nil {
		p.TotpEnabled = *input.Enabled
	}
	if input.LastUsedCounter != nil {
		v := *input.LastUsedCounter
		p.TotpLastUsedCounter = &v
	}
	return nil
}

func (r *principalRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return repository.ErrNotFound
	}
	v := at.UTC()
	p.LastLoginAt = &v
	return nil
}

// ─── refresh records ───

type refreshRepo Store

func (r *refreshRepo) Create(ctx context.Context, input repository.CreateRefreshInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHash[input.TokenHash]; exists {
		return "", repository.ErrConflict
	}
	rec := &repository.RefreshRecord{
		ID:          uuid.NewString(),
		PrincipalID: input.PrincipalID,
		TokenHash:   input.TokenHash,
		IssuedAt:    input.IssuedAt.UTC(),
		ExpiresAt:   input.ExpiresAt.UTC(),
	}
	r.refresh[rec.ID] = rec
	r.byHash[rec.TokenHash] = rec.ID
	return rec.ID, nil
}

func (r *refreshRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := *r.refresh[id]
	if rec.RevokedAt != nil {
		v := *rec.RevokedAt
		rec.RevokedAt = &v
	}
	return &rec, nil
}

func (r *refreshRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.refresh[id]
	if !ok || rec.RevokedAt != nil {
		return repository.ErrNotFound
	}
	v := at.UTC()
	rec.RevokedAt = &v
	return nil
}

func (r *refreshRepo) RevokeAllByPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	v := at.UTC()
	for _, rec := range r.refresh {
		if rec.PrincipalID == principalID && rec.RevokedAt == nil {
			t := v
			rec.RevokedAt = &t
			n++
		}
	}
	return n, nil
}
