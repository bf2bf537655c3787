package memory

import (
	"context"
	"sort"
	"time"

	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
)

type backupRepository struct {
	unit *Unit
}

func (r *backupRepository) ByID(ctx context.Context, id domainbackup.BackupID) (*domainbackup.Backup, error) {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backups[id]
	if !ok {
		return nil, domainbackup.ErrBackupNotFound
	}
	return &b, nil
}

func (r *backupRepository) Create(ctx context.Context, b *domainbackup.Backup) error {
	snapshot := *b
	return r.unit.stage(op{
		apply: func(s *Store) {
			s.backups[snapshot.ID] = snapshot
		},
	})
}

func (r *backupRepository) MarkRestored(ctx context.Context, id domainbackup.BackupID, at time.Time) error {
	return r.unit.stage(op{
		check: func(s *Store) error {
			b, ok := s.backups[id]
			if !ok {
				return domainbackup.ErrBackupNotFound
			}
			if b.Restored {
				return domainbackup.ErrAlreadyRestored
			}
			return nil
		},
		apply: func(s *Store) {
			b := s.backups[id]
			b.Restored = true
			b.RestoredAt = at.UTC()
			s.backups[id] = b
		},
	})
}

// List returns newest deletions first.
func (r *backupRepository) List(ctx context.Context, filter domainbackup.ListFilter) ([]*domainbackup.Backup, error) {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domainbackup.Backup
	for _, b := range s.backups {
		b := b
		if filter.OwnerID != "" && b.Snapshot.OwnerID != filter.OwnerID {
			continue
		}
		if b.Restored && !filter.IncludeRestored {
			continue
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ domainbackup.Repository = (*backupRepository)(nil)
