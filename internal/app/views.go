package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"domu/internal/amqp"
	"domu/internal/collection"
	"domu/internal/core"
	"domu/internal/log"
	"domu/internal/sheets"
)

// ExpenseLine is an expense with its category name resolved.
type ExpenseLine struct {
	core.Expense
	CategoryName string
}

// Dashboard is everything the home view shows.
type Dashboard struct {
	Home       core.HomeSummary
	Series     []core.CategoryTotal
	Expenses   []ExpenseLine
	Categories []core.Category
}

// LoadDashboard fetches the home summary, the expense series and both
// collections concurrently. The first failure cancels the rest.
func (a *App) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d      Dashboard
		series core.ExpenseSeries
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Home, err = a.Summary.Home(gctx)
		return err
	})
	g.Go(func() (err error) {
		series, err = a.Summary.Expenses(gctx)
		return err
	})
	g.Go(func() error {
		_, err := a.Expenses.FetchAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Categories, err = a.Categories.FetchAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.Series = series.Points()
	d.Expenses = resolve(a.Expenses.Items(), core.IndexCategories(d.Categories))
	return &d, nil
}

// ListExpenses refreshes both collections and returns expenses in
// collection order with category names resolved.
func (a *App) ListExpenses(ctx context.Context) ([]ExpenseLine, error) {
	expenses, categories, err := a.fetchBoth(ctx)
	if err != nil {
		return nil, err
	}
	return resolve(expenses, core.IndexCategories(categories)), nil
}

func (a *App) fetchBoth(ctx context.Context) ([]core.Expense, []core.Category, error) {
	var (
		expenses   []core.Expense
		categories []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		expenses, err = a.Expenses.FetchAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		categories, err = a.Categories.FetchAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return expenses, categories, nil
}

func resolve(expenses []core.Expense, idx core.CategoryIndex) []ExpenseLine {
	lines := make([]ExpenseLine, len(expenses))
	for i, e := range expenses {
		lines[i] = ExpenseLine{Expense: e, CategoryName: idx.NameOf(e.Category)}
	}
	return lines
}

// Export writes the current expense collection to the configured
// spreadsheet and returns the written range and row count.
func (a *App) Export(ctx context.Context) (string, int, error) {
	if a.exporter == nil {
		return "", 0, errors.New("no spreadsheet exporter configured")
	}
	expenses, categories, err := a.fetchBoth(ctx)
	if err != nil {
		return "", 0, err
	}
	rows := sheets.Rows(expenses, core.IndexCategories(categories))
	ref, err := a.exporter.Export(ctx, rows)
	if err != nil {
		a.logger.ErrorContext(ctx, "Export failed",
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
		return "", 0, fmt.Errorf("export expenses: %w", err)
	}
	return ref, len(rows), nil
}

// Watch follows change events published by other instances until ctx is
// done. Each event invalidates the aggregates and refreshes the affected
// collection before onEvent is called. Expired aggregate cache entries are
// swept every sweepInterval.
func (a *App) Watch(ctx context.Context, sweepInterval time.Duration, onEvent func(*amqp.ChangeEvent)) error {
	if a.events == nil {
		return ErrEventsDisabled
	}
	if sweepInterval > 0 {
		go a.Janitor.Run(ctx, sweepInterval)
	}
	return a.events.Consume(ctx, func(ev *amqp.ChangeEvent) error {
		a.Summary.Invalidate()
		var err error
		switch ev.Resource {
		case collection.Expenses.Name:
			_, err = a.Expenses.FetchAll(ctx)
		case collection.Categories.Name:
			_, err = a.Categories.FetchAll(ctx)
		default:
			a.logger.Debug("Ignoring change event", log.FieldResource, ev.Resource)
			return nil
		}
		if err != nil {
			return fmt.Errorf("refresh %s: %w", ev.Resource, err)
		}
		if onEvent != nil {
			onEvent(ev)
		}
		return nil
	})
}
