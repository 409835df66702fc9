package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/cache"
	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/stock"
	"github.com/selcuk9494/react-sub001/internal/store"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Database is the part of tenantdb.Registry the service needs.
type Database interface {
	Branch(cfg domain.BranchConfig) tenantdb.Executor
	Evict(cfg domain.BranchConfig) error
	State() tenantdb.State
	BranchPoolCount() int
}

type Service struct {
	control            store.ControlPlane
	db                 Database
	engine             *stock.Engine
	branches           cache.BranchCache
	cacheTTL           time.Duration
	defaultClosingHour int
}

func New(control store.ControlPlane, db Database, engine *stock.Engine, branchCache cache.BranchCache, cacheTTL time.Duration, defaultClosingHour int) *Service {
	if engine == nil {
		engine = stock.New(nil)
	}
	if branchCache == nil {
		branchCache = cache.NoopBranchCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Service{
		control:            control,
		db:                 db,
		engine:             engine,
		branches:           branchCache,
		cacheTTL:           cacheTTL,
		defaultClosingHour: businessday.NormalizeClosingHour(defaultClosingHour),
	}
}

// ListBranches returns the branches visible to the caller: every branch for
// an admin, the caller's own otherwise.
func (s *Service) ListBranches(ctx context.Context) ([]domain.BranchSummary, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	if cached, hit, err := s.branches.Get(ctx, actor.UserID); err != nil {
		log.Printf("[service] WARN: branch cache read failed user=%d: %v", actor.UserID, err)
	} else if hit {
		return cached, nil
	}

	var (
		branches []domain.BranchConfig
		err      error
	)
	if actor.IsAdmin {
		branches, err = s.control.ListBranches(ctx)
	} else {
		branches, err = s.control.ListBranchesByOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.BranchSummary, 0, len(branches))
	for _, b := range branches {
		summaries = append(summaries, b.Summary())
	}
	if err := s.branches.Set(ctx, actor.UserID, summaries, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: branch cache write failed user=%d: %v", actor.UserID, err)
	}
	return summaries, nil
}

func (s *Service) LiveStock(ctx context.Context, branchID int64, date string) (domain.LiveStockResponse, error) {
	branch, err := s.authorizedBranch(ctx, branchID)
	if err != nil {
		return domain.LiveStockResponse{}, err
	}
	resp, err := s.engine.LiveStock(ctx, s.db.Branch(branch), branch, date)
	if err != nil {
		return domain.LiveStockResponse{}, s.branchError(branch, err)
	}
	return resp, nil
}

func (s *Service) SaveStockEntries(ctx context.Context, branchID int64, req domain.StockEntryRequest) (domain.StockEntryResult, error) {
	branch, err := s.authorizedBranch(ctx, branchID)
	if err != nil {
		return domain.StockEntryResult{}, err
	}
	if len(req.Items) == 0 {
		return domain.StockEntryResult{}, fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}
	result, err := s.engine.SaveEntries(ctx, s.db.Branch(branch), branch, req)
	if err != nil {
		return domain.StockEntryResult{}, s.branchError(branch, err)
	}
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] stock entries saved branch=%d date=%s saved=%d skipped=%d by=%s",
		branch.ID, result.Date, result.Saved, result.Skipped, actor.Email)
	return result, nil
}

// authorizedBranch loads the branch and checks that the caller owns it or is
// an admin.
func (s *Service) authorizedBranch(ctx context.Context, branchID int64) (domain.BranchConfig, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.BranchConfig{}, ErrUnauthenticated
	}
	if branchID < 1 {
		return domain.BranchConfig{}, store.ErrInvalidInput
	}
	branch, err := s.control.GetBranch(ctx, branchID)
	if err != nil {
		return domain.BranchConfig{}, err
	}
	if !actor.IsAdmin && branch.OwnerUserID != actor.UserID {
		return domain.BranchConfig{}, ErrForbidden
	}
	return *branch, nil
}

func (s *Service) branchError(branch domain.BranchConfig, err error) error {
	if tenantdb.IsUnreachable(err) {
		log.Printf("[service] WARN: branch=%d (%s) unreachable: %v", branch.ID, branch.Name, err)
	}
	if errors.Is(err, stock.ErrInvalidEntry) {
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	return err
}

func (s *Service) CreateUserWithBranches(ctx context.Context, req domain.UserCreateRequest) (domain.UserCreateResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: valid email is required", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return domain.UserCreateResponse{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserCreateResponse{}, fmt.Errorf("hash password: %w", err)
	}

	branches := make([]domain.BranchConfig, 0, len(req.Branches))
	for _, b := range req.Branches {
		closingHour := s.defaultClosingHour
		if b.ClosingHour != nil {
			closingHour = businessday.NormalizeClosingHour(*b.ClosingHour)
		}
		branches = append(branches, domain.BranchConfig{
			Name:        b.Name,
			Host:        b.Host,
			Port:        b.Port,
			Database:    b.Database,
			User:        b.User,
			Password:    b.Password,
			KasaNumbers: b.KasaNumbers,
			ClosingHour: closingHour,
		})
	}

	user, created, err := s.control.CreateUserWithBranches(ctx, domain.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		IsAdmin:      req.IsAdmin,
	}, branches)
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	s.invalidate(ctx, user.ID, actor.UserID)
	log.Printf("[service] user created id=%d email=%s branches=%d by=%s", user.ID, user.Email, len(created), actor.Email)

	summaries := make([]domain.BranchSummary, 0, len(created))
	for _, b := range created {
		summaries = append(summaries, b.Summary())
	}
	return domain.UserCreateResponse{User: *user, Branches: summaries}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.control.ListUsers(ctx)
}

// GetUser returns one account with the branches it owns, without
// connection details.
func (s *Service) GetUser(ctx context.Context, userID int64) (domain.UserDetail, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return domain.UserDetail{}, err
	}
	if userID < 1 {
		return domain.UserDetail{}, store.ErrInvalidInput
	}
	user, err := s.control.GetUser(ctx, userID)
	if err != nil {
		return domain.UserDetail{}, err
	}
	owned, err := s.control.ListBranchesByOwner(ctx, user.ID)
	if err != nil {
		return domain.UserDetail{}, err
	}
	summaries := make([]domain.BranchSummary, 0, len(owned))
	for _, b := range owned {
		summaries = append(summaries, b.Summary())
	}
	return domain.UserDetail{User: *user, Branches: summaries}, nil
}

// DeleteBranch removes the branch and closes its pool unless another branch
// still resolves to the same database.
func (s *Service) DeleteBranch(ctx context.Context, branchID int64) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if branchID < 1 {
		return store.ErrInvalidInput
	}

	deleted, err := s.control.DeleteBranch(ctx, branchID)
	if err != nil {
		return err
	}

	if s.poolShared(ctx, *deleted) {
		log.Printf("[service] branch=%d deleted, pool kept for other branches", deleted.ID)
	} else if err := s.db.Evict(*deleted); err != nil {
		log.Printf("[service] WARN: closing pool for branch=%d failed: %v", deleted.ID, err)
	}
	s.invalidate(ctx, deleted.OwnerUserID, actor.UserID)
	log.Printf("[service] branch deleted id=%d name=%s by=%s", deleted.ID, deleted.Name, actor.Email)
	return nil
}

func (s *Service) poolShared(ctx context.Context, deleted domain.BranchConfig) bool {
	remaining, err := s.control.ListBranches(ctx)
	if err != nil {
		log.Printf("[service] WARN: cannot check pool sharing for branch=%d: %v", deleted.ID, err)
		return true
	}
	key := tenantdb.KeyFor(deleted)
	for _, b := range remaining {
		if b.ID != deleted.ID && tenantdb.KeyFor(b) == key {
			return true
		}
	}
	return false
}

func (s *Service) Status() domain.StatusResponse {
	state := s.db.State()
	return domain.StatusResponse{
		OK:       state == tenantdb.StateConnected || state == tenantdb.StateMockMode,
		Mode:     state.String(),
		Branches: s.db.BranchPoolCount(),
		At:       time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrUnauthenticated
	}
	if !actor.IsAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...int64) {
	for _, id := range userIDs {
		if err := s.branches.Invalidate(ctx, id); err != nil {
			log.Printf("[service] WARN: branch cache invalidate failed user=%d: %v", id, err)
		}
	}
}
