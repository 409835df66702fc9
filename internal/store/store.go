package store

import (
	"context"
	"errors"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
)

// ControlPlane is the branch registry and user directory kept on the shared
// database.
type ControlPlane interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetBranch(ctx context.Context, id int64) (*domain.BranchConfig, error)
	ListBranchesByOwner(ctx context.Context, userID int64) ([]domain.BranchConfig, error)
	ListBranches(ctx context.Context) ([]domain.BranchConfig, error)
	CreateUserWithBranches(ctx context.Context, user domain.User, branches []domain.BranchConfig) (*domain.User, []domain.BranchConfig, error)
	DeleteBranch(ctx context.Context, id int64) (*domain.BranchConfig, error)
}
