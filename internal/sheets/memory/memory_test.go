package memory

import (
	"context"
	"testing"

	"domu/internal/core"
	ports "domu/internal/sheets"
)

func TestMemoryStoreExport(t *testing.T) {
	s := New()
	rows := []ports.Row{
		{ID: 1, Date: "2025-01-01", Description: "Rent", Amount: core.Money{Cents: 100}, Category: "Housing"},
		{ID: 2, Date: "2025-01-02", Description: "Soap", Amount: core.Money{Cents: 5}, Category: core.Uncategorized},
	}

	ref, err := s.Export(context.Background(), rows)
	if err != nil || ref != "mem:1:A1:E3" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}
	if got := s.Rows(); len(got) != 2 || got[1].Description != "Soap" {
		t.Fatalf("unexpected rows: %+v", got)
	}

	ref, err = s.Export(context.Background(), rows[:1])
	if err != nil || ref != "mem:2:A1:E2" {
		t.Fatalf("unexpected second export: ref=%q err=%v", ref, err)
	}
	if got := s.Rows(); len(got) != 1 {
		t.Fatalf("export should replace previous rows, got %+v", got)
	}
}

func TestMemoryStoreExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Export(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
