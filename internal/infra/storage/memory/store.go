package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

var (
	ErrReadOnly      = errors.New("memory: write inside read-only unit")
	ErrUnitClosed    = errors.New("memory: unit already committed or rolled back")
	ErrTooManyWrites = errors.New("memory: commit exceeds the per-commit write limit")
)

// CommitHook runs before a commit is applied. seq counts commits from 1.
// Returning an error aborts that commit without applying any write.
type CommitHook func(seq, writes int) error

// Store is the shared state behind every memory unit of work. Commits are
// applied under one lock so a unit's writes become visible all at once.
type Store struct {
	mu       sync.RWMutex
	bookings map[domainbooking.BookingID]domainbooking.Booking
	backups  map[domainbackup.BackupID]domainbackup.Backup
	config   *domainpricing.Config
	profiles map[domainuser.ID]domainuser.Profile
	claims   map[domainuser.ID]domainuser.Claims

	hook     CommitHook
	commits  int
	maxWrite int
}

func NewStore() *Store {
	return &Store{
		bookings: make(map[domainbooking.BookingID]domainbooking.Booking),
		backups:  make(map[domainbackup.BackupID]domainbackup.Backup),
		profiles: make(map[domainuser.ID]domainuser.Profile),
		claims:   make(map[domainuser.ID]domainuser.Claims),
		maxWrite: batch.MaxSize,
	}
}

// SetCommitHook installs hook for failure injection; nil removes it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Commits returns how many commits were applied.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Factory returns a unit of work factory over the store.
func (s *Store) Factory() *Factory {
	return &Factory{store: s}
}

// PutBooking seeds a booking directly, bypassing units.
func (s *Store) PutBooking(b domainbooking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *Store) PutProfile(p domainuser.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Email = domainuser.NormalizeEmail(p.Email)
	s.profiles[p.ID] = p
}

func (s *Store) PutConfig(cfg domainpricing.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &cfg
}

func (s *Store) PutBackup(b domainbackup.Backup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[b.ID] = b
}

// Booking returns a committed booking by id.
func (s *Store) Booking(id domainbooking.BookingID) (domainbooking.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	return b, ok
}

// AllBookings returns every committed booking ordered by date, start and room.
func (s *Store) AllBookings() []domainbooking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainbooking.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return bookingLess(&out[i], &out[j]) })
	return out
}

func (s *Store) AllBackups() []domainbackup.Backup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domainbackup.Backup, 0, len(s.backups))
	for _, b := range s.backups {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.Before(out[j].DeletedAt) })
	return out
}

func (s *Store) Profile(id domainuser.ID) (domainuser.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

func (s *Store) Claims(id domainuser.ID) (domainuser.Claims, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	return c, ok
}

type op struct {
	check func(s *Store) error
	apply func(s *Store)
}

func (s *Store) commit(ops []op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ops) > s.maxWrite {
		return ErrTooManyWrites
	}
	if s.hook != nil {
		if err := s.hook(s.commits+1, len(ops)); err != nil {
			return err
		}
	}
	for _, o := range ops {
		if o.check == nil {
			continue
		}
		if err := o.check(s); err != nil {
			return err
		}
	}
	for _, o := range ops {
		o.apply(s)
	}
	s.commits++
	return nil
}

func bookingLess(a, b *domainbooking.Booking) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	if a.Room != b.Room {
		return a.Room < b.Room
	}
	return a.ID < b.ID
}

func utcNow() time.Time {
	return time.Now().UTC()
}
