package export

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/log"
)

func TestExportWritesResolvedRows(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(log.Config{Level: slog.LevelError, Component: log.ComponentExport})
	exporter := NewExporter(dir, logger)

	food := core.NewCategory("Food", "fork.knife", "FF6B35", 0)
	expenses := []core.Expense{
		core.NewExpense(core.Money{Cents: 1250}, "Lunch", "with team", time.Date(2025, 6, 17, 12, 30, 0, 0, time.UTC), &food.ID),
		core.NewExpense(core.Money{Cents: 300}, "Coffee", "", time.Date(2025, 6, 17, 9, 0, 0, 0, time.UTC), nil),
	}

	path, err := exporter.Export(context.Background(), CSVRenderer{}, expenses, []core.Category{food})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".csv") {
		t.Fatalf("unexpected path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2", len(rows))
	}
	if rows[1][1] != "Lunch" || rows[1][2] != "Food" || rows[1][3] != "12.50" {
		t.Fatalf("lunch row = %v", rows[1])
	}
	if rows[2][2] != "" {
		t.Fatalf("uncategorized expense should have a blank category, got %q", rows[2][2])
	}
}

func TestSummaryTotalsPerCategory(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(log.Config{Level: slog.LevelError, Component: log.ComponentExport})
	exporter := NewExporter(dir, logger)

	food := core.NewCategory("Food", "fork.knife", "FF6B35", 0)
	travel := core.NewCategory("Travel", "car", "4ECDC4", 1)
	expenses := []core.Expense{
		core.NewExpense(core.Money{Cents: 1250}, "Lunch", "", time.Date(2025, 6, 17, 12, 0, 0, 0, time.UTC), &food.ID),
		core.NewExpense(core.Money{Cents: 750}, "Dinner", "", time.Date(2025, 6, 17, 19, 0, 0, 0, time.UTC), &food.ID),
		core.NewExpense(core.Money{Cents: 300}, "Coffee", "", time.Date(2025, 6, 17, 9, 0, 0, 0, time.UTC), nil),
	}

	path, err := exporter.Export(context.Background(), SummaryRenderer{}, expenses, []core.Category{food, travel})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(path, "categories_") {
		t.Fatalf("unexpected path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header, 2 categories and uncategorized", len(rows))
	}
	if rows[1][0] != "Food" || rows[1][1] != "2" || rows[1][2] != "20.00" {
		t.Fatalf("food row = %v", rows[1])
	}
	if rows[2][0] != "Travel" || rows[2][1] != "0" || rows[2][2] != "0.00" {
		t.Fatalf("travel row = %v", rows[2])
	}
	if rows[3][0] != "(uncategorized)" || rows[3][2] != "3.00" {
		t.Fatalf("uncategorized row = %v", rows[3])
	}
}

func TestExportEmptyListStillWritesHeader(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(log.Config{Level: slog.LevelError, Component: log.ComponentExport})
	exporter := NewExporter(dir, logger)

	path, err := exporter.Export(context.Background(), CSVRenderer{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0][0] != "date" {
		t.Fatalf("header rows = %v", rows)
	}
}
