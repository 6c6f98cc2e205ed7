package sheets

import (
	"testing"

	"domu/internal/core"
)

func TestRows(t *testing.T) {
	cleaning := int64(1)
	gone := int64(99)
	expenses := []core.Expense{
		{ID: 7, Description: "Rent", Amount: core.Money{Cents: 10000}, Date: core.NewDate(2025, 1, 1)},
		{ID: 3, Description: "Soap", Amount: core.Money{Cents: 450}, Date: core.NewDate(2024, 12, 30), Category: &cleaning},
		{ID: 5, Description: "Lift", Amount: core.Money{Cents: 80000}, Date: core.NewDate(2025, 1, 1), Category: &gone},
	}
	idx := core.IndexCategories([]core.Category{{ID: 1, Name: "Cleaning"}})

	rows := Rows(expenses, idx)

	if len(rows) != 3 {
		t.Fatalf("Rows() returned %d rows, want 3", len(rows))
	}
	wantIDs := []int64{3, 5, 7}
	for i, id := range wantIDs {
		if rows[i].ID != id {
			t.Errorf("rows[%d].ID = %d, want %d", i, rows[i].ID, id)
		}
	}
	if rows[0].Category != "Cleaning" {
		t.Errorf("rows[0].Category = %q, want Cleaning", rows[0].Category)
	}
	if rows[1].Category != core.Uncategorized {
		t.Errorf("dangling category exported as %q, want %q", rows[1].Category, core.Uncategorized)
	}
	if rows[2].Category != core.Uncategorized {
		t.Errorf("missing category exported as %q, want %q", rows[2].Category, core.Uncategorized)
	}
	if rows[0].Date != "2024-12-30" {
		t.Errorf("rows[0].Date = %q", rows[0].Date)
	}
}
