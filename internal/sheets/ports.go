// Package sheets exports the expense collection to a spreadsheet.
package sheets

import (
	"context"
	"slices"

	"domu/internal/core"
)

// Header is the first row of every export.
var Header = []string{"ID", "Date", "Description", "Amount", "Category"}

// Row is one exported expense, with the category already resolved to a
// name.
type Row struct {
	ID          int64
	Date        string
	Description string
	Amount      core.Money
	Category    string
}

// Ports for outbound adapters.
type (
	// Exporter replaces the exported sheet with rows and returns a
	// reference to the written range.
	Exporter interface {
		Export(ctx context.Context, rows []Row) (ref string, err error)
	}
)

// Rows converts expenses to export rows, oldest first. Dangling or absent
// category references export as core.Uncategorized.
func Rows(expenses []core.Expense, categories core.CategoryIndex) []Row {
	rows := make([]Row, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, Row{
			ID:          e.ID,
			Date:        e.Date.String(),
			Description: e.Description,
			Amount:      e.Amount,
			Category:    categories.NameOf(e.Category),
		})
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		if a.Date != b.Date {
			if a.Date < b.Date {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return rows
}
