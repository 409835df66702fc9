package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/store"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

// Database is the part of tenantdb.Registry the store needs.
type Database interface {
	ControlPlane() tenantdb.Executor
	WithControlPlaneTx(ctx context.Context, fn func(tenantdb.Executor) error) error
}

type Store struct {
	db Database
}

func New(db Database) *Store {
	return &Store{db: db}
}

const (
	userByEmailSQL = `SELECT ` + tenantdb.UserColumns + ` FROM users WHERE email = $1`
	userByIDSQL    = `SELECT ` + tenantdb.UserColumns + ` FROM users WHERE id = $1`
	listUsersSQL   = `SELECT ` + tenantdb.UserColumns + ` FROM users ORDER BY id`

	branchByIDSQL      = `SELECT ` + tenantdb.BranchColumns + ` FROM branches WHERE id = $1`
	branchesByOwnerSQL = `SELECT ` + tenantdb.BranchColumns + ` FROM branches WHERE user_id = $1 ORDER BY id`
	listBranchesSQL    = `SELECT ` + tenantdb.BranchColumns + ` FROM branches ORDER BY id`

	insertUserSQL = `
		INSERT INTO users (email, name, password_hash, is_admin, active)
		VALUES ($1,$2,$3,$4,true)
		RETURNING id, created_at
	`
	insertBranchSQL = `
		INSERT INTO branches (user_id, name, db_host, db_port, db_name, db_user, db_password, kasa_numbers, closing_hour)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`
	deleteBranchSQL = `DELETE FROM branches WHERE id = $1 RETURNING ` + tenantdb.BranchColumns
)

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, store.ErrInvalidInput
	}
	return s.oneUser(ctx, tenantdb.Statement{Shape: tenantdb.ShapeUserByEmail, SQL: userByEmailSQL, Args: []any{email}})
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	return s.oneUser(ctx, tenantdb.Statement{Shape: tenantdb.ShapeUserByID, SQL: userByIDSQL, Args: []any{id}})
}

func (s *Store) oneUser(ctx context.Context, stmt tenantdb.Statement) (*domain.User, error) {
	user, err := tenantdb.CollectOne(ctx, s.db.ControlPlane(), stmt, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	return tenantdb.Collect(ctx, s.db.ControlPlane(), tenantdb.Statement{Shape: tenantdb.ShapeListUsers, SQL: listUsersSQL}, scanUser)
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*domain.BranchConfig, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	branch, err := tenantdb.CollectOne(ctx, s.db.ControlPlane(), tenantdb.Statement{
		Shape: tenantdb.ShapeBranchByID,
		SQL:   branchByIDSQL,
		Args:  []any{id},
	}, scanBranch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &branch, nil
}

func (s *Store) ListBranchesByOwner(ctx context.Context, userID int64) ([]domain.BranchConfig, error) {
	return tenantdb.Collect(ctx, s.db.ControlPlane(), tenantdb.Statement{
		Shape: tenantdb.ShapeBranchesByOwner,
		SQL:   branchesByOwnerSQL,
		Args:  []any{userID},
	}, scanBranch)
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.BranchConfig, error) {
	return tenantdb.Collect(ctx, s.db.ControlPlane(), tenantdb.Statement{Shape: tenantdb.ShapeListBranches, SQL: listBranchesSQL}, scanBranch)
}

// CreateUserWithBranches inserts the user and all of its branches in one
// transaction.
func (s *Store) CreateUserWithBranches(ctx context.Context, user domain.User, branches []domain.BranchConfig) (*domain.User, []domain.BranchConfig, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Name = strings.TrimSpace(user.Name)
	if user.Email == "" || user.PasswordHash == "" {
		return nil, nil, store.ErrInvalidInput
	}
	branches = append([]domain.BranchConfig(nil), branches...)
	for i := range branches {
		branches[i] = normalizeBranch(branches[i])
		b := branches[i]
		if b.Name == "" || b.Host == "" || b.Database == "" || b.User == "" {
			return nil, nil, store.ErrInvalidInput
		}
	}

	created := make([]domain.BranchConfig, 0, len(branches))
	err := s.db.WithControlPlaneTx(ctx, func(exec tenantdb.Executor) error {
		type inserted struct {
			ID        int64
			CreatedAt time.Time
		}
		row, err := tenantdb.CollectOne(ctx, exec, tenantdb.Statement{
			Shape: tenantdb.ShapeInsertUser,
			SQL:   insertUserSQL,
			Args:  []any{user.Email, user.Name, user.PasswordHash, user.IsAdmin},
		}, func(r pgx.CollectableRow) (inserted, error) {
			var out inserted
			err := r.Scan(&out.ID, &out.CreatedAt)
			return out, err
		})
		if err != nil {
			return err
		}
		user.ID = row.ID
		user.CreatedAt = row.CreatedAt.UTC()
		user.Active = true

		for _, branch := range branches {
			branch.OwnerUserID = user.ID
			id, err := tenantdb.CollectOne(ctx, exec, tenantdb.Statement{
				Shape: tenantdb.ShapeInsertBranch,
				SQL:   insertBranchSQL,
				Args: []any{
					branch.OwnerUserID, branch.Name, branch.Host, branch.Port, branch.Database,
					branch.User, branch.Password, branch.KasaNumbers, branch.ClosingHour,
				},
			}, pgx.RowTo[int64])
			if err != nil {
				return err
			}
			branch.ID = id
			created = append(created, branch)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}
	return &user, created, nil
}

func (s *Store) DeleteBranch(ctx context.Context, id int64) (*domain.BranchConfig, error) {
	if id < 1 {
		return nil, store.ErrInvalidInput
	}
	branch, err := tenantdb.CollectOne(ctx, s.db.ControlPlane(), tenantdb.Statement{
		Shape: tenantdb.ShapeDeleteBranch,
		SQL:   deleteBranchSQL,
		Args:  []any{id},
	}, scanBranch)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &branch, nil
}

func scanUser(row pgx.CollectableRow) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.Active, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func scanBranch(row pgx.CollectableRow) (domain.BranchConfig, error) {
	var b domain.BranchConfig
	if err := row.Scan(&b.ID, &b.OwnerUserID, &b.Name, &b.Host, &b.Port, &b.Database, &b.User, &b.Password, &b.KasaNumbers, &b.ClosingHour); err != nil {
		return domain.BranchConfig{}, err
	}
	return normalizeBranch(b), nil
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
	if b.KasaNumbers == nil {
		b.KasaNumbers = []int{}
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
