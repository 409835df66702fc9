package postgres

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/store"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

func newMockStore(t *testing.T) *Store {
	t.Helper()
	reg := tenantdb.New(tenantdb.Options{})
	if state := reg.Initialize(context.Background()); state != tenantdb.StateMockMode {
		t.Fatalf("expected mock mode, got %s", state)
	}
	return New(reg)
}

func TestFindUserByEmailInMockMode(t *testing.T) {
	s := newMockStore(t)

	user, err := s.FindUserByEmail(context.Background(), "  Admin@Example.com ")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tenantdb.MockAdminPassword)); err != nil {
		t.Fatalf("expected mock password hash to match: %v", err)
	}
	if !user.IsAdmin || !user.Active {
		t.Fatalf("expected active admin, got %+v", user)
	}
}

func TestFindUnknownUserInMockMode(t *testing.T) {
	s := newMockStore(t)

	if _, err := s.FindUserByEmail(context.Background(), "someone@example.org"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for a non-demo email, got %v", err)
	}
}

func TestUserLookupsInMockMode(t *testing.T) {
	s := newMockStore(t)
	ctx := context.Background()

	user, err := s.GetUser(ctx, 5)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != 5 || user.Email != tenantdb.MockAdminEmail || user.PasswordHash == "" {
		t.Fatalf("unexpected user %+v", user)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Email != tenantdb.MockAdminEmail {
		t.Fatalf("unexpected users %+v", users)
	}
}

func TestBranchLookupsInMockMode(t *testing.T) {
	s := newMockStore(t)
	ctx := context.Background()

	branch, err := s.GetBranch(ctx, 9)
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if branch.ID != 9 || branch.ClosingHour != 6 || len(branch.KasaNumbers) != 2 {
		t.Fatalf("unexpected branch %+v", branch)
	}

	owned, err := s.ListBranchesByOwner(ctx, 4)
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(owned) != 1 || owned[0].OwnerUserID != 4 {
		t.Fatalf("unexpected owned branches %+v", owned)
	}
}

func TestInvalidIdentifiersAreRejected(t *testing.T) {
	s := newMockStore(t)
	ctx := context.Background()

	if _, err := s.GetBranch(ctx, 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := s.FindUserByEmail(ctx, "   "); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := s.DeleteBranch(ctx, -3); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateUserWithBranchesInMockMode(t *testing.T) {
	s := newMockStore(t)

	user, branches, err := s.CreateUserWithBranches(context.Background(), domain.User{
		Email:        "Owner@Example.com",
		Name:         "Owner",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
	}, []domain.BranchConfig{
		{Name: "Moda", Host: "db.moda.local", Port: " 5432 ", Database: "pos", User: "reader", ClosingHour: 42},
		{Name: "Bebek", Host: "db.bebek.local", Database: "pos", User: "reader", KasaNumbers: []int{3}},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == 0 || user.Email != "owner@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if len(branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(branches))
	}
	if branches[0].ID == branches[1].ID {
		t.Fatalf("expected distinct branch ids")
	}
	if branches[0].ClosingHour != 6 {
		t.Fatalf("expected out-of-range closing hour normalized to 6, got %d", branches[0].ClosingHour)
	}
	if branches[0].Port != "5432" || branches[1].Port != "5432" {
		t.Fatalf("expected normalized ports, got %q and %q", branches[0].Port, branches[1].Port)
	}
	if branches[0].OwnerUserID != user.ID {
		t.Fatalf("expected owner id %d, got %d", user.ID, branches[0].OwnerUserID)
	}
}

func TestCreateUserWithInvalidBranchFails(t *testing.T) {
	s := newMockStore(t)

	_, _, err := s.CreateUserWithBranches(context.Background(), domain.User{
		Email:        "owner@example.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
	}, []domain.BranchConfig{{Name: "No host", Database: "pos", User: "reader"}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStatementsMatchTheirShapes(t *testing.T) {
	cases := map[string]tenantdb.Shape{
		userByEmailSQL:     tenantdb.ShapeUserByEmail,
		userByIDSQL:        tenantdb.ShapeUserByID,
		listUsersSQL:       tenantdb.ShapeListUsers,
		branchByIDSQL:      tenantdb.ShapeBranchByID,
		branchesByOwnerSQL: tenantdb.ShapeBranchesByOwner,
		listBranchesSQL:    tenantdb.ShapeListBranches,
		insertUserSQL:      tenantdb.ShapeInsertUser,
		insertBranchSQL:    tenantdb.ShapeInsertBranch,
		deleteBranchSQL:    tenantdb.ShapeDeleteBranch,
	}
	for sql, want := range cases {
		if got := tenantdb.ClassifySQL(sql); got != want {
			t.Fatalf("expected %s for %q, got %s", want, sql, got)
		}
	}
}
