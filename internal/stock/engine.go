// Package stock reconciles a branch's product catalog, manual stock counts,
// closed sales and open orders into a per-product ledger for one business day.
package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/selcuk9494/react-sub001/internal/businessday"
	"github.com/selcuk9494/react-sub001/internal/domain"
	"github.com/selcuk9494/react-sub001/internal/tenantdb"
)

// Line statuses that are not counted as sold or open.
const (
	ReturnStatus = 2
	CancelStatus = 3
)

const (
	DefaultGroup   = "Other"
	SoldGroup      = "Sold"
	OpenOrderGroup = "Open Order"
)

var ErrInvalidEntry = errors.New("invalid stock entry")

type CatalogItem struct {
	PLU   string
	Name  string
	Group string
}

type StockEntry struct {
	ProductName string
	Quantity    int
}

// Movement is an aggregated quantity for one product. Quantity excludes the
// return and cancel statuses, which are summed into Cancelled instead.
type Movement struct {
	ProductName string
	Quantity    int
	Cancelled   int
}

const (
	catalogSQL = `
		SELECT COALESCE(plu::text, ''), product_name, COALESCE(NULLIF(TRIM(product_group), ''), 'Other')
		FROM product
		WHERE product_name IS NOT NULL
		ORDER BY product_name
	`
	stockEntriesSQL = `
		SELECT product_name, quantity
		FROM daily_stock
		WHERE business_date = $1::date
		ORDER BY updated_at, id
	`
	salesAggregateSQL = `
		SELECT product_name,
			COALESCE(SUM(CASE WHEN COALESCE(status, 0) = ANY($2::int[]) THEN 0 ELSE quantity END), 0)::int,
			COALESCE(SUM(CASE WHEN COALESCE(status, 0) = ANY($2::int[]) THEN quantity ELSE 0 END), 0)::int
		FROM sales_items
		WHERE report_date = $1::date
			AND product_name IS NOT NULL
			AND (cardinality($3::int[]) = 0 OR kasa_no = ANY($3::int[]))
		GROUP BY product_name
	`
	openOrderAggregateSQL = `
		SELECT product_name,
			COALESCE(SUM(CASE WHEN COALESCE(status, 0) = ANY($2::int[]) THEN 0 ELSE quantity END), 0)::int,
			COALESCE(SUM(CASE WHEN COALESCE(status, 0) = ANY($2::int[]) THEN quantity ELSE 0 END), 0)::int
		FROM open_order_items
		WHERE opened_date = $1::date
			AND product_name IS NOT NULL
		GROUP BY product_name
	`
	ensureDailyStockSQL = `
		CREATE TABLE IF NOT EXISTS daily_stock (
			id SERIAL PRIMARY KEY,
			product_name TEXT NOT NULL,
			business_date DATE NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (product_name, business_date)
		)
	`
	// The same product typed with different casing or padding is one entry:
	// other spellings for the day are removed before the upsert.
	upsertStockEntrySQL = `
		WITH superseded AS (
			DELETE FROM daily_stock
			WHERE business_date = $2::date
				AND lower(btrim(product_name)) = lower($1)
				AND product_name <> $1
		)
		INSERT INTO daily_stock (product_name, business_date, quantity, updated_at)
		VALUES ($1, $2::date, $3, now())
		ON CONFLICT (product_name, business_date)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`
)

type Engine struct {
	calc     *businessday.Calculator
	excluded []int
}

func New(calc *businessday.Calculator) *Engine {
	if calc == nil {
		calc = businessday.New(businessday.Location)
	}
	return &Engine{
		calc:     calc,
		excluded: []int{ReturnStatus, CancelStatus},
	}
}

// Window resolves the business day for cfg: the labelled day when date is
// set, the current one otherwise.
func (e *Engine) Window(cfg domain.BranchConfig, date string) (businessday.Window, error) {
	if strings.TrimSpace(date) == "" {
		return e.calc.Current(cfg.ClosingHour), nil
	}
	w, err := e.calc.ForDate(date, cfg.ClosingHour)
	if err != nil {
		return businessday.Window{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return w, nil
}

// LiveStock builds the ledger for one branch and business day. A read that
// fails with tenantdb.ErrSchemaMismatch contributes nothing; any other
// failure, including an unreachable branch, aborts the whole call.
func (e *Engine) LiveStock(ctx context.Context, exec tenantdb.Executor, cfg domain.BranchConfig, date string) (domain.LiveStockResponse, error) {
	window, err := e.Window(cfg, date)
	if err != nil {
		return domain.LiveStockResponse{}, err
	}
	label := window.Label
	kasa := cfg.KasaNumbers
	if kasa == nil {
		kasa = []int{}
	}

	var (
		catalog []CatalogItem
		entries []StockEntry
		sales   []Movement
		open    []Movement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := tenantdb.Collect(gctx, exec, tenantdb.Statement{
			Shape: tenantdb.ShapeCatalog,
			SQL:   catalogSQL,
		}, scanCatalogItem)
		catalog, err = degrade(cfg, "catalog", items, err)
		return err
	})
	g.Go(func() error {
		items, err := tenantdb.Collect(gctx, exec, tenantdb.Statement{
			Shape: tenantdb.ShapeStockEntries,
			SQL:   stockEntriesSQL,
			Args:  []any{label},
		}, scanStockEntry)
		entries, err = degrade(cfg, "stock entries", items, err)
		return err
	})
	g.Go(func() error {
		items, err := tenantdb.Collect(gctx, exec, tenantdb.Statement{
			Shape: tenantdb.ShapeSalesAggregate,
			SQL:   salesAggregateSQL,
			Args:  []any{label, e.excluded, kasa},
		}, scanMovement)
		sales, err = degrade(cfg, "sales", items, err)
		return err
	})
	g.Go(func() error {
		items, err := tenantdb.Collect(gctx, exec, tenantdb.Statement{
			Shape: tenantdb.ShapeOpenOrderAggregate,
			SQL:   openOrderAggregateSQL,
			Args:  []any{label, e.excluded},
		}, scanMovement)
		open, err = degrade(cfg, "open orders", items, err)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.LiveStockResponse{}, err
	}

	resp := domain.LiveStockResponse{
		Date:     label,
		BranchID: cfg.ID,
		Items:    []domain.ProductLedgerEntry{},
	}
	if len(catalog) == 0 && len(entries) == 0 {
		return resp, nil
	}
	resp.Items = Merge(catalog, entries, sales, open)
	resp.HasAnyStockEntry = len(entries) > 0
	return resp, nil
}

func degrade[T any](cfg domain.BranchConfig, what string, items []T, err error) ([]T, error) {
	if err == nil {
		return items, nil
	}
	if errors.Is(err, tenantdb.ErrSchemaMismatch) {
		log.Printf("[stock] WARN: branch=%d %s read skipped: %v", cfg.ID, what, err)
		return nil, nil
	}
	return nil, fmt.Errorf("load %s: %w", what, err)
}

// Merge folds the four sources into ledger entries keyed by product name,
// compared case-insensitively. When several stock entries share a key the
// last one wins, so entries must arrive oldest first. Products seen only in
// sales or open orders are added under the SoldGroup and OpenOrderGroup
// labels.
func Merge(catalog []CatalogItem, entries []StockEntry, sales []Movement, open []Movement) []domain.ProductLedgerEntry {
	index := map[string]int{}
	ledger := make([]domain.ProductLedgerEntry, 0, len(catalog))

	lookup := func(name string, group string) (int, bool) {
		key := productKey(name)
		if key == "" {
			return -1, false
		}
		if i, ok := index[key]; ok {
			return i, true
		}
		ledger = append(ledger, domain.ProductLedgerEntry{
			Name:  strings.TrimSpace(name),
			Group: group,
		})
		index[key] = len(ledger) - 1
		return len(ledger) - 1, true
	}

	for _, item := range catalog {
		group := strings.TrimSpace(item.Group)
		if group == "" {
			group = DefaultGroup
		}
		lookup(item.Name, group)
	}
	for _, entry := range entries {
		if i, ok := lookup(entry.ProductName, DefaultGroup); ok {
			ledger[i].InitialStock = entry.Quantity
			ledger[i].HasStockEntry = true
		}
	}
	for _, m := range sales {
		if i, ok := lookup(m.ProductName, SoldGroup); ok {
			ledger[i].Sold += m.Quantity
			ledger[i].Cancelled += m.Cancelled
		}
	}
	for _, m := range open {
		if i, ok := lookup(m.ProductName, OpenOrderGroup); ok {
			ledger[i].Open += m.Quantity
			ledger[i].Cancelled += m.Cancelled
		}
	}

	for i := range ledger {
		ledger[i].Remaining = ledger[i].InitialStock - ledger[i].Sold - ledger[i].Open
	}
	slices.SortStableFunc(ledger, func(a, b domain.ProductLedgerEntry) int {
		if moved := (b.Sold + b.Open) - (a.Sold + a.Open); moved != 0 {
			return moved
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return ledger
}

// SaveEntries upserts one daily_stock row per product for the requested
// business day, creating the table on first use. Blank product names are
// skipped; a negative quantity rejects the whole request.
func (e *Engine) SaveEntries(ctx context.Context, exec tenantdb.Executor, cfg domain.BranchConfig, req domain.StockEntryRequest) (domain.StockEntryResult, error) {
	window, err := e.Window(cfg, req.Date)
	if err != nil {
		return domain.StockEntryResult{}, err
	}

	items := make([]domain.StockEntryItem, 0, len(req.Items))
	seen := map[string]int{}
	skipped := 0
	for _, item := range req.Items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.ProductName == "" {
			skipped++
			continue
		}
		if item.Quantity < 0 {
			return domain.StockEntryResult{}, fmt.Errorf("%w: negative quantity for %q", ErrInvalidEntry, item.ProductName)
		}
		// A repeated product within one request keeps its last value.
		if i, ok := seen[productKey(item.ProductName)]; ok {
			items[i] = item
			continue
		}
		seen[productKey(item.ProductName)] = len(items)
		items = append(items, item)
	}

	result := domain.StockEntryResult{Date: window.Label, BranchID: cfg.ID, Skipped: skipped}
	if len(items) == 0 {
		return result, nil
	}

	if _, err := exec.Exec(ctx, tenantdb.Statement{Shape: tenantdb.ShapeEnsureDailyStock, SQL: ensureDailyStockSQL}); err != nil && !tenantdb.IsDuplicateObject(err) {
		return domain.StockEntryResult{}, fmt.Errorf("ensure daily_stock: %w", err)
	}
	for _, item := range items {
		_, err := exec.Exec(ctx, tenantdb.Statement{
			Shape: tenantdb.ShapeUpsertStockEntry,
			SQL:   upsertStockEntrySQL,
			Args:  []any{item.ProductName, window.Label, item.Quantity},
		})
		if err != nil {
			return domain.StockEntryResult{}, fmt.Errorf("save stock entry %q: %w", item.ProductName, err)
		}
		result.Saved++
	}
	return result, nil
}

func productKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func scanCatalogItem(row pgx.CollectableRow) (CatalogItem, error) {
	var item CatalogItem
	err := row.Scan(&item.PLU, &item.Name, &item.Group)
	return item, err
}

func scanStockEntry(row pgx.CollectableRow) (StockEntry, error) {
	var entry StockEntry
	err := row.Scan(&entry.ProductName, &entry.Quantity)
	return entry, err
}

func scanMovement(row pgx.CollectableRow) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ProductName, &m.Quantity, &m.Cancelled)
	return m, err
}
