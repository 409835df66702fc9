package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/store"
)

// Store is an in-process control plane used by tests and local tooling.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]domain.User
	byEmail  map[string]int64
	branches map[int64]domain.BranchConfig
	nextID   int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    map[int64]domain.User{},
		byEmail:  map[string]int64{},
		branches: map[int64]domain.BranchConfig{},
		now:      time.Now,
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.User) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *Store) GetBranch(_ context.Context, id int64) (*domain.BranchConfig, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	branch.KasaNumbers = slices.Clone(branch.KasaNumbers)
	return &branch, nil
}

func (s *Store) ListBranchesByOwner(_ context.Context, userID int64) ([]domain.BranchConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectBranches(func(b domain.BranchConfig) bool { return b.OwnerUserID == userID }), nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.BranchConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectBranches(func(domain.BranchConfig) bool { return true }), nil
}

func (s *Store) collectBranches(keep func(domain.BranchConfig) bool) []domain.BranchConfig {
	out := []domain.BranchConfig{}
	for _, b := range s.branches {
		if keep(b) {
			b.KasaNumbers = slices.Clone(b.KasaNumbers)
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.BranchConfig) int { return int(a.ID - b.ID) })
	return out
}

func (s *Store) CreateUserWithBranches(_ context.Context, user domain.User, branches []domain.BranchConfig) (*domain.User, []domain.BranchConfig, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Name = strings.TrimSpace(user.Name)
	if user.Email == "" || user.PasswordHash == "" {
		return nil, nil, store.ErrInvalidInput
	}
	normalized := make([]domain.BranchConfig, 0, len(branches))
	for _, b := range branches {
		b = normalizeBranch(b)
		if b.Name == "" || b.Host == "" || b.Database == "" || b.User == "" {
			return nil, nil, store.ErrInvalidInput
		}
		normalized = append(normalized, b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return nil, nil, store.ErrConflict
	}
	user.ID = s.allocID()
	user.Active = true
	user.CreatedAt = s.now().UTC()
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID

	for i := range normalized {
		normalized[i].ID = s.allocID()
		normalized[i].OwnerUserID = user.ID
		stored := normalized[i]
		stored.KasaNumbers = slices.Clone(stored.KasaNumbers)
		s.branches[stored.ID] = stored
	}
	return &user, normalized, nil
}

func (s *Store) DeleteBranch(_ context.Context, id int64) (*domain.BranchConfig, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.branches, id)
	return &branch, nil
}

func normalizeBranch(b domain.BranchConfig) domain.BranchConfig {
	b.Name = strings.TrimSpace(b.Name)
	b.Host = strings.TrimSpace(b.Host)
	b.Port = strings.TrimSpace(b.Port)
	if b.Port == "" {
		b.Port = "5432"
	}
	b.Database = strings.TrimSpace(b.Database)
	b.User = strings.TrimSpace(b.User)
	b.ClosingHour = businessday.NormalizeClosingHour(b.ClosingHour)
	b.KasaNumbers = slices.Clone(b.KasaNumbers)
	if b.KasaNumbers == nil {
		b.KasaNumbers = []int{}
	}
	return b
}
