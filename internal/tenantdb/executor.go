package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Shape names the intent of a statement so that mock mode and test fakes can
// answer it without parsing SQL.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeUserByEmail
	ShapeUserByID
	ShapeListUsers
	ShapeBranchByID
	ShapeBranchesByOwner
	ShapeListBranches
	ShapeInsertUser
	ShapeInsertBranch
	ShapeDeleteBranch
	ShapeCatalog
	ShapeStockEntries
	ShapeSalesAggregate
	ShapeOpenOrderAggregate
	ShapeEnsureDailyStock
	ShapeUpsertStockEntry
)

var shapeNames = map[Shape]string{
	ShapeUnknown:            "unknown",
	ShapeUserByEmail:        "user-by-email",
	ShapeUserByID:           "user-by-id",
	ShapeListUsers:          "list-users",
	ShapeBranchByID:         "branch-by-id",
	ShapeBranchesByOwner:    "branches-by-owner",
	ShapeListBranches:       "list-branches",
	ShapeInsertUser:         "insert-user",
	ShapeInsertBranch:       "insert-branch",
	ShapeDeleteBranch:       "delete-branch",
	ShapeCatalog:            "catalog",
	ShapeStockEntries:       "stock-entries",
	ShapeSalesAggregate:     "sales-aggregate",
	ShapeOpenOrderAggregate: "open-order-aggregate",
	ShapeEnsureDailyStock:   "ensure-daily-stock",
	ShapeUpsertStockEntry:   "upsert-stock-entry",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

type Statement struct {
	Shape Shape
	SQL   string
	Args  []any
}

// Executor runs statements against one database target. Errors are
// classified into ErrBranchUnreachable, ErrControlPlaneUnavailable and
// ErrSchemaMismatch where applicable.
type Executor interface {
	Query(ctx context.Context, stmt Statement) (pgx.Rows, error)
	Exec(ctx context.Context, stmt Statement) (int64, error)
}

// Collect runs stmt and decodes every row with scan. The rows, and with them
// the pooled connection, are released before Collect returns.
func Collect[T any](ctx context.Context, exec Executor, stmt Statement, scan pgx.RowToFunc[T]) ([]T, error) {
	rows, err := exec.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, classifyScan(err)
	}
	return items, nil
}

// CollectOne is Collect for single-row lookups; it returns pgx.ErrNoRows when
// nothing matched.
func CollectOne[T any](ctx context.Context, exec Executor, stmt Statement, scan pgx.RowToFunc[T]) (T, error) {
	rows, err := exec.Query(ctx, stmt)
	if err != nil {
		var zero T
		return zero, err
	}
	item, err := pgx.CollectOneRow(rows, scan)
	if err != nil {
		return item, classifyScan(err)
	}
	return item, nil
}

func classifyScan(err error) error {
	var scanErr pgx.ScanArgError
	if errors.As(err, &scanErr) && !errors.Is(err, ErrSchemaMismatch) {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type poolExecutor struct {
	q       querier
	target  Target
	timeout time.Duration
}

func (e *poolExecutor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *poolExecutor) Query(ctx context.Context, stmt Statement) (pgx.Rows, error) {
	qctx, cancel := e.withTimeout(ctx)
	rows, err := e.q.Query(qctx, stmt.SQL, stmt.Args...)
	if err != nil {
		cancel()
		return nil, classify(e.target, err)
	}
	return &timedRows{Rows: rows, cancel: cancel, target: e.target}, nil
}

func (e *poolExecutor) Exec(ctx context.Context, stmt Statement) (int64, error) {
	qctx, cancel := e.withTimeout(ctx)
	defer cancel()
	tag, err := e.q.Exec(qctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, classify(e.target, err)
	}
	return tag.RowsAffected(), nil
}

// timedRows ties the statement timeout to the lifetime of the result set:
// closing the rows returns the connection and releases the timer.
type timedRows struct {
	pgx.Rows
	cancel context.CancelFunc
	target Target
}

func (r *timedRows) Close() {
	r.Rows.Close()
	r.cancel()
}

func (r *timedRows) Err() error {
	return classify(r.target, r.Rows.Err())
}

type noopExecutor struct{}

func (noopExecutor) Query(_ context.Context, _ Statement) (pgx.Rows, error) {
	return emptyRows(), nil
}

func (noopExecutor) Exec(_ context.Context, _ Statement) (int64, error) {
	return 0, nil
}

// failedExecutor answers every statement with the same error.
type failedExecutor struct {
	err error
}

func (e failedExecutor) Query(_ context.Context, _ Statement) (pgx.Rows, error) {
	return nil, e.err
}

func (e failedExecutor) Exec(_ context.Context, _ Statement) (int64, error) {
	return 0, e.err
}
