package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/store"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

func TestCreateAndDeleteBranchAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("REPORTING_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set REPORTING_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	reg := tenantdb.New(tenantdb.Options{ControlPlaneURL: databaseURL})
	if state := reg.Initialize(ctx); state != tenantdb.StateConnected {
		t.Fatalf("expected connected registry, got %s", state)
	}
	t.Cleanup(func() {
		_ = reg.Shutdown()
	})
	s := New(reg)

	stamp := time.Now().UnixNano()
	email := fmt.Sprintf("it-%d@example.com", stamp)
	t.Cleanup(func() {
		_, _ = reg.ControlPlane().Exec(ctx, tenantdb.Statement{SQL: `DELETE FROM users WHERE email = $1`, Args: []any{email}})
	})

	user, branches, err := s.CreateUserWithBranches(ctx, domain.User{
		Email:        email,
		Name:         "Integration",
		PasswordHash: "$2a$10$integrationhashintegrationhash",
	}, []domain.BranchConfig{{
		Name:        "IT Branch",
		Host:        "127.0.0.1",
		Port:        "5432",
		Database:    "pos",
		User:        "reader",
		KasaNumbers: []int{1, 4},
		ClosingHour: 5,
	}})
	if err != nil {
		t.Fatalf("create user with branches: %v", err)
	}

	_, _, err = s.CreateUserWithBranches(ctx, domain.User{Email: email, PasswordHash: "$2a$10$x"}, nil)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	owned, err := s.ListBranchesByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(owned) != 1 || owned[0].ClosingHour != 5 || len(owned[0].KasaNumbers) != 2 {
		t.Fatalf("unexpected owned branches %+v", owned)
	}

	deleted, err := s.DeleteBranch(ctx, branches[0].ID)
	if err != nil {
		t.Fatalf("delete branch: %v", err)
	}
	if deleted.ID != branches[0].ID {
		t.Fatalf("expected deleted id %d, got %d", branches[0].ID, deleted.ID)
	}
	if _, err := s.GetBranch(ctx, branches[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
