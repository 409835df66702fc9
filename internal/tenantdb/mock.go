package tenantdb

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// Control-plane column lists. Readers select these in this order and mock
// mode answers in the same order.
const (
	UserColumns   = "id, email, name, password_hash, is_admin, active, created_at"
	BranchColumns = "id, user_id, name, db_host, db_port, db_name, db_user, db_password, kasa_numbers, closing_hour"
)

const (
	MockAdminEmail    = "admin@example.com"
	MockAdminPassword = "123456"
)

var (
	userColumnNames   = splitColumns(UserColumns)
	branchColumnNames = splitColumns(BranchColumns)
	mockCreatedAt     = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
)

type sqlPattern struct {
	fragment string
	shape    Shape
}

// sqlPatterns is checked in order; writes come before reads so that
// "DELETE FROM branches WHERE id" is not answered as a lookup.
var sqlPatterns = []sqlPattern{
	{"insert into users", ShapeInsertUser},
	{"insert into branches", ShapeInsertBranch},
	{"delete from branches", ShapeDeleteBranch},
	{"from users where email", ShapeUserByEmail},
	{"from users where id", ShapeUserByID},
	{"from branches where user_id", ShapeBranchesByOwner},
	{"from branches where id", ShapeBranchByID},
	{"from branches", ShapeListBranches},
	{"from users", ShapeListUsers},
}

// ClassifySQL maps raw control-plane SQL onto a known Shape using
// case-insensitive fragment matching. Unrecognised text yields ShapeUnknown.
func ClassifySQL(sql string) Shape {
	normalized := strings.ToLower(strings.Join(strings.Fields(sql), " "))
	for _, p := range sqlPatterns {
		if strings.Contains(normalized, p.fragment) {
			return p.shape
		}
	}
	return ShapeUnknown
}

// MockResponder answers control-plane statements with canned rows while the
// real database is unavailable. It is not a SQL emulator.
type MockResponder struct {
	hashOnce sync.Once
	hash     string
	nextID   atomic.Int64
}

func NewMockResponder() *MockResponder {
	m := &MockResponder{}
	m.nextID.Store(1000)
	return m
}

func (m *MockResponder) passwordHash() string {
	m.hashOnce.Do(func() {
		hashed, err := bcrypt.GenerateFromPassword([]byte(MockAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[tenantdb] mock: failed to hash demo password: %v", err)
			return
		}
		m.hash = string(hashed)
	})
	return m.hash
}

func (m *MockResponder) userRow(id int64, email string) []any {
	return []any{id, email, "Demo Admin", m.passwordHash(), true, true, mockCreatedAt}
}

func branchRow(id int64, ownerID int64) []any {
	return []any{id, ownerID, "Demo Branch", "localhost", "5432", "demo_pos", "demo", "", []int{1, 2}, 6}
}

// Respond returns the canned result for shape. Unknown shapes, and email
// lookups for anyone but MockAdminEmail, return an empty result.
func (m *MockResponder) Respond(shape Shape, args []any) pgx.Rows {
	switch shape {
	case ShapeUserByEmail:
		// Only the demo account exists; any other address is unknown.
		if strings.ToLower(strings.TrimSpace(argString(args, 0))) != MockAdminEmail {
			return emptyRows()
		}
		return StaticRows(userColumnNames, m.userRow(1, MockAdminEmail))
	case ShapeUserByID:
		return StaticRows(userColumnNames, m.userRow(argInt64(args, 0, 1), MockAdminEmail))
	case ShapeListUsers:
		return StaticRows(userColumnNames, m.userRow(1, MockAdminEmail))
	case ShapeBranchByID:
		return StaticRows(branchColumnNames, branchRow(argInt64(args, 0, 1), 1))
	case ShapeBranchesByOwner:
		return StaticRows(branchColumnNames, branchRow(1, argInt64(args, 0, 1)))
	case ShapeListBranches:
		return StaticRows(branchColumnNames, branchRow(1, 1))
	case ShapeInsertUser:
		return StaticRows([]string{"id", "created_at"}, []any{m.nextID.Add(1), mockCreatedAt})
	case ShapeInsertBranch:
		return StaticRows([]string{"id"}, []any{m.nextID.Add(1)})
	case ShapeDeleteBranch:
		return StaticRows(branchColumnNames, branchRow(argInt64(args, 0, 1), 1))
	}
	return emptyRows()
}

// mockExecutor serves the control plane while the registry is in mock mode.
type mockExecutor struct {
	responder *MockResponder
}

func (e mockExecutor) resolve(stmt Statement) Shape {
	if stmt.Shape != ShapeUnknown {
		return stmt.Shape
	}
	return ClassifySQL(stmt.SQL)
}

func (e mockExecutor) Query(_ context.Context, stmt Statement) (pgx.Rows, error) {
	shape := e.resolve(stmt)
	if shape == ShapeUnknown {
		log.Printf("[tenantdb] mock: no canned response for statement: %s", compactSQL(stmt.SQL))
	}
	return e.responder.Respond(shape, stmt.Args), nil
}

func (e mockExecutor) Exec(_ context.Context, stmt Statement) (int64, error) {
	switch e.resolve(stmt) {
	case ShapeInsertUser, ShapeInsertBranch, ShapeDeleteBranch:
		return 1, nil
	case ShapeUnknown:
		log.Printf("[tenantdb] mock: no canned response for statement: %s", compactSQL(stmt.SQL))
	}
	return 0, nil
}

func splitColumns(list string) []string {
	parts := strings.Split(list, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func argString(args []any, idx int) string {
	if idx >= len(args) || args[idx] == nil {
		return ""
	}
	if s, ok := args[idx].(string); ok {
		return s
	}
	return fmt.Sprint(args[idx])
}

func argInt64(args []any, idx int, fallback int64) int64 {
	if idx >= len(args) {
		return fallback
	}
	switch v := args[idx].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
