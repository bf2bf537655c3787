package memory

import (
	"context"

	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
)

type configRepository struct {
	unit *Unit
}

func (r *configRepository) Get(ctx context.Context) (domainpricing.Config, error) {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return domainpricing.Defaults(), nil
	}
	return *s.config, nil
}

func (r *configRepository) Save(ctx context.Context, cfg domainpricing.Config) error {
	return r.unit.stage(op{
		apply: func(s *Store) {
			c := cfg
			s.config = &c
		},
	})
}

var _ domainpricing.ConfigRepository = (*configRepository)(nil)
