package memory

import (
	"context"

	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

type profileRepository struct {
	unit *Unit
}

func (r *profileRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return &p, nil
}

func (r *profileRepository) ByEmail(ctx context.Context, email string) (*domainuser.Profile, error) {
	email = domainuser.NormalizeEmail(email)
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Email == email {
			p := p
			return &p, nil
		}
	}
	return nil, domainuser.ErrNotFound
}

func (r *profileRepository) Save(ctx context.Context, profile *domainuser.Profile) error {
	if profile.ID == "" {
		return domainuser.ErrIDRequired
	}
	snapshot := *profile
	snapshot.Email = domainuser.NormalizeEmail(snapshot.Email)
	return r.unit.stage(op{
		apply: func(s *Store) {
			s.profiles[snapshot.ID] = snapshot
		},
	})
}

// ClaimsSyncer mirrors role claims into the store's identity table.
type ClaimsSyncer struct {
	Store *Store
	// Fail, when set, is returned instead of syncing.
	Fail error
}

func (c *ClaimsSyncer) SyncClaims(ctx context.Context, id domainuser.ID, claims domainuser.Claims) error {
	if c.Fail != nil {
		return c.Fail
	}
	c.Store.mu.Lock()
	defer c.Store.mu.Unlock()
	c.Store.claims[id] = claims
	return nil
}

var (
	_ domainuser.Repository   = (*profileRepository)(nil)
	_ domainuser.ClaimsSyncer = (*ClaimsSyncer)(nil)
)
