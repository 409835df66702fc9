package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

var (
	catalogColumns  = []string{"plu", "product_name", "product_group"}
	entryColumns    = []string{"product_name", "quantity"}
	movementColumns = []string{"product_name", "sold", "cancelled"}
)

type answer func(args []any) (pgx.Rows, error)

// fakeBranch answers engine statements by shape and keeps daily_stock rows in
// memory so that writes are visible to later reads.
type fakeBranch struct {
	mu      sync.Mutex
	answers map[tenantdb.Shape]answer
	args    map[tenantdb.Shape][]any
	stock   map[string]map[string]int
	ensured int
	execErr error
}

func newFakeBranch() *fakeBranch {
	return &fakeBranch{
		answers: map[tenantdb.Shape]answer{},
		args:    map[tenantdb.Shape][]any{},
		stock:   map[string]map[string]int{},
	}
}

func (f *fakeBranch) rows(shape tenantdb.Shape, columns []string, data ...[]any) {
	f.answers[shape] = func([]any) (pgx.Rows, error) {
		return tenantdb.StaticRows(columns, data...), nil
	}
}

func (f *fakeBranch) fail(shape tenantdb.Shape, err error) {
	f.answers[shape] = func([]any) (pgx.Rows, error) {
		return nil, err
	}
}

func (f *fakeBranch) Query(_ context.Context, stmt tenantdb.Statement) (pgx.Rows, error) {
	f.mu.Lock()
	f.args[stmt.Shape] = stmt.Args
	a, ok := f.answers[stmt.Shape]
	f.mu.Unlock()
	if ok {
		return a(stmt.Args)
	}
	if stmt.Shape == tenantdb.ShapeStockEntries {
		return f.stockRows(stmt.Args[0].(string)), nil
	}
	return tenantdb.StaticRows(nil), nil
}

func (f *fakeBranch) stockRows(date string) pgx.Rows {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data [][]any
	for name, qty := range f.stock[date] {
		data = append(data, []any{name, qty})
	}
	return tenantdb.StaticRows(entryColumns, data...)
}

func (f *fakeBranch) Exec(_ context.Context, stmt tenantdb.Statement) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return 0, f.execErr
	}
	switch stmt.Shape {
	case tenantdb.ShapeEnsureDailyStock:
		f.ensured++
	case tenantdb.ShapeUpsertStockEntry:
		name, date, qty := stmt.Args[0].(string), stmt.Args[1].(string), stmt.Args[2].(int)
		if f.stock[date] == nil {
			f.stock[date] = map[string]int{}
		}
		for existing := range f.stock[date] {
			if existing != name && productKey(existing) == productKey(name) {
				delete(f.stock[date], existing)
			}
		}
		f.stock[date][name] = qty
		return 1, nil
	}
	return 0, nil
}

func fixedEngine(t time.Time) *Engine {
	return New(businessday.New(businessday.Location).WithClock(func() time.Time { return t }))
}

var (
	beforeClose = time.Date(2024, time.March, 10, 5, 59, 0, 0, businessday.Location)
	branch      = domain.BranchConfig{ID: 7, Name: "Moda", ClosingHour: 6, KasaNumbers: []int{1, 2}}
)

func TestLiveStockReconcilesEntriesAndSales(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"100", "A", "Drinks"}, []any{"101", "B", "Food"})
	f.rows(tenantdb.ShapeStockEntries, entryColumns, []any{"A", 10})
	f.rows(tenantdb.ShapeSalesAggregate, movementColumns, []any{"B", 3, 0})

	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	require.NoError(t, err)

	assert.Equal(t, "2024-03-09", resp.Date)
	assert.Equal(t, int64(7), resp.BranchID)
	assert.True(t, resp.HasAnyStockEntry)
	require.Len(t, resp.Items, 2)

	byName := map[string]domain.ProductLedgerEntry{}
	for _, item := range resp.Items {
		byName[item.Name] = item
	}
	assert.Equal(t, domain.ProductLedgerEntry{Name: "A", Group: "Drinks", InitialStock: 10, Remaining: 10, HasStockEntry: true}, byName["A"])
	assert.Equal(t, domain.ProductLedgerEntry{Name: "B", Group: "Food", Sold: 3, Remaining: -3}, byName["B"])
	assert.Equal(t, "B", resp.Items[0].Name, "highest movement first")
}

func TestLiveStockQueriesUseBusinessDayAndKasaFilter(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"1", "A", "Drinks"})

	_, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	require.NoError(t, err)

	assert.Equal(t, []any{"2024-03-09"}, f.args[tenantdb.ShapeStockEntries])
	assert.Equal(t, []any{"2024-03-09", []int{ReturnStatus, CancelStatus}, []int{1, 2}}, f.args[tenantdb.ShapeSalesAggregate])
	assert.Equal(t, []any{"2024-03-09", []int{ReturnStatus, CancelStatus}}, f.args[tenantdb.ShapeOpenOrderAggregate])
}

func TestLiveStockExplicitDate(t *testing.T) {
	f := newFakeBranch()
	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", resp.Date)

	_, err = fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "29/02/2024")
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestLiveStockEmptyBranch(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeSalesAggregate, movementColumns, []any{"Tea", 4, 0})

	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	require.NoError(t, err)
	assert.False(t, resp.HasAnyStockEntry)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
}

func TestLiveStockSchemaMismatchDegradesOneRead(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"1", "A", "Drinks"})
	f.rows(tenantdb.ShapeSalesAggregate, movementColumns, []any{"A", 2, 1})
	f.fail(tenantdb.ShapeOpenOrderAggregate, fmt.Errorf("%w: relation \"open_order_items\" does not exist", tenantdb.ErrSchemaMismatch))

	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Sold)
	assert.Equal(t, 1, resp.Items[0].Cancelled)
	assert.Equal(t, 0, resp.Items[0].Open)
	assert.Equal(t, -2, resp.Items[0].Remaining)
}

func TestLiveStockUnreachableAborts(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"1", "A", "Drinks"})
	f.fail(tenantdb.ShapeSalesAggregate, fmt.Errorf("%w: dial tcp: connection refused", tenantdb.ErrBranchUnreachable))

	_, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	assert.ErrorIs(t, err, tenantdb.ErrBranchUnreachable)
	assert.True(t, tenantdb.IsUnreachable(err))
}

func TestLiveStockOtherErrorsAbort(t *testing.T) {
	f := newFakeBranch()
	boom := errors.New("division by zero")
	f.fail(tenantdb.ShapeStockEntries, boom)

	_, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	assert.ErrorIs(t, err, boom)
}

func TestLiveStockScanMismatchDegrades(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"1", "A", "Drinks"})
	f.rows(tenantdb.ShapeStockEntries, entryColumns, []any{"A", "ten"})

	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), f, branch, "")
	require.NoError(t, err)
	assert.False(t, resp.HasAnyStockEntry)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 0, resp.Items[0].InitialStock)
}

func TestLiveStockInMockModeIsEmpty(t *testing.T) {
	reg := tenantdb.New(tenantdb.Options{})
	require.Equal(t, tenantdb.StateMockMode, reg.Initialize(context.Background()))

	resp, err := fixedEngine(beforeClose).LiveStock(context.Background(), reg.Branch(branch), branch, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", resp.Date)
	assert.Empty(t, resp.Items)
	assert.False(t, resp.HasAnyStockEntry)
}

func TestMergeSynthesizesUnknownProducts(t *testing.T) {
	ledger := Merge(
		[]CatalogItem{{Name: "Ayran", Group: ""}},
		[]StockEntry{{ProductName: " ayran ", Quantity: 5}, {ProductName: "Baklava", Quantity: 2}},
		[]Movement{{ProductName: "AYRAN", Quantity: 1}, {ProductName: "Kebab", Quantity: 4, Cancelled: 1}},
		[]Movement{{ProductName: "Kebab", Quantity: 2}, {ProductName: "Soup", Quantity: 1}},
	)

	byName := map[string]domain.ProductLedgerEntry{}
	for _, e := range ledger {
		byName[e.Name] = e
		assert.Equal(t, e.InitialStock-e.Sold-e.Open, e.Remaining, "remaining for %s", e.Name)
	}
	require.Len(t, ledger, 4)

	assert.Equal(t, DefaultGroup, byName["Ayran"].Group)
	assert.Equal(t, 5, byName["Ayran"].InitialStock)
	assert.Equal(t, 4, byName["Ayran"].Remaining)
	assert.Equal(t, DefaultGroup, byName["Baklava"].Group)
	assert.Equal(t, SoldGroup, byName["Kebab"].Group)
	assert.Equal(t, 1, byName["Kebab"].Cancelled)
	assert.Equal(t, -6, byName["Kebab"].Remaining)
	assert.Equal(t, OpenOrderGroup, byName["Soup"].Group)
	assert.False(t, byName["Soup"].HasStockEntry)
}

func TestMergeSortsByMovementThenName(t *testing.T) {
	ledger := Merge(
		[]CatalogItem{{Name: "c"}, {Name: "B"}, {Name: "a"}, {Name: "d"}},
		nil,
		[]Movement{{ProductName: "d", Quantity: 1}, {ProductName: "c", Quantity: 1}},
		[]Movement{{ProductName: "a", Quantity: 5}},
	)

	names := make([]string, 0, len(ledger))
	for _, e := range ledger {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "c", "d", "B"}, names)
}

func TestMergeIgnoresBlankNames(t *testing.T) {
	ledger := Merge([]CatalogItem{{Name: "  "}}, nil, []Movement{{ProductName: "", Quantity: 3}}, nil)
	assert.Empty(t, ledger)
}

func TestSaveEntriesRoundTrip(t *testing.T) {
	f := newFakeBranch()
	f.rows(tenantdb.ShapeCatalog, catalogColumns, []any{"9", "ProductX", "Drinks"})
	engine := fixedEngine(beforeClose)
	ctx := context.Background()

	result, err := engine.SaveEntries(ctx, f, branch, domain.StockEntryRequest{
		Items: []domain.StockEntryItem{{ProductName: " ProductX ", Quantity: 7}, {ProductName: "  ", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StockEntryResult{Date: "2024-03-09", BranchID: 7, Saved: 1, Skipped: 1}, result)
	assert.Equal(t, 1, f.ensured)

	resp, err := engine.LiveStock(ctx, f, branch, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 7, resp.Items[0].InitialStock)
	assert.True(t, resp.Items[0].HasStockEntry)
	assert.True(t, resp.HasAnyStockEntry)
}

func TestSaveEntriesUpsertsSameDay(t *testing.T) {
	f := newFakeBranch()
	engine := fixedEngine(beforeClose)
	ctx := context.Background()

	for _, qty := range []int{3, 9} {
		_, err := engine.SaveEntries(ctx, f, branch, domain.StockEntryRequest{
			Date:  "2024-03-09",
			Items: []domain.StockEntryItem{{ProductName: "Tea", Quantity: qty}},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{"Tea": 9}, f.stock["2024-03-09"])
}

func TestSaveEntriesRejectsNegativeQuantity(t *testing.T) {
	f := newFakeBranch()
	_, err := fixedEngine(beforeClose).SaveEntries(context.Background(), f, branch, domain.StockEntryRequest{
		Items: []domain.StockEntryItem{{ProductName: "Tea", Quantity: 2}, {ProductName: "Coffee", Quantity: -1}},
	})
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.Empty(t, f.stock)
	assert.Zero(t, f.ensured)
}

func TestSaveEntriesPropagatesUnreachable(t *testing.T) {
	f := newFakeBranch()
	f.execErr = fmt.Errorf("%w: timeout", tenantdb.ErrBranchUnreachable)

	_, err := fixedEngine(beforeClose).SaveEntries(context.Background(), f, branch, domain.StockEntryRequest{
		Items: []domain.StockEntryItem{{ProductName: "Tea", Quantity: 2}},
	})
	assert.ErrorIs(t, err, tenantdb.ErrBranchUnreachable)
}

func TestMergeLaterStockEntryWins(t *testing.T) {
	ledger := Merge(nil, []StockEntry{{ProductName: "Cola", Quantity: 5}, {ProductName: "cola", Quantity: 9}}, nil, nil)
	require.Len(t, ledger, 1)
	assert.Equal(t, 9, ledger[0].InitialStock)

	assert.Contains(t, strings.Join(strings.Fields(stockEntriesSQL), " "), "ORDER BY updated_at, id")
}

func TestSaveEntriesTreatsCaseVariantsAsOneProduct(t *testing.T) {
	f := newFakeBranch()
	engine := fixedEngine(beforeClose)
	ctx := context.Background()

	for _, item := range []domain.StockEntryItem{{ProductName: "Cola", Quantity: 5}, {ProductName: "cola", Quantity: 9}} {
		_, err := engine.SaveEntries(ctx, f, branch, domain.StockEntryRequest{Items: []domain.StockEntryItem{item}})
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{"cola": 9}, f.stock["2024-03-09"])

	resp, err := engine.LiveStock(ctx, f, branch, "")
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 9, resp.Items[0].InitialStock)
}

func TestSaveEntriesCollapsesRepeatsInOneRequest(t *testing.T) {
	f := newFakeBranch()

	result, err := fixedEngine(beforeClose).SaveEntries(context.Background(), f, branch, domain.StockEntryRequest{
		Items: []domain.StockEntryItem{{ProductName: "Tea", Quantity: 2}, {ProductName: "Coffee", Quantity: 1}, {ProductName: " TEA ", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, map[string]int{"TEA": 4, "Coffee": 1}, f.stock["2024-03-09"])
}
