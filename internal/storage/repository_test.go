package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cats := core.DefaultCategories()
	if err := repo.InsertCategories(ctx, cats); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.ListActiveCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(cats) {
		t.Fatalf("got %d categories, want %d", len(got), len(cats))
	}
	for i, c := range got {
		if c.Order != i {
			t.Errorf("category %d order = %d", i, c.Order)
		}
	}
}

func TestSoftDeleteKeepsExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.NewCategory("Food", "fork.knife", "FF6B35", 0)
	if err := repo.InsertCategories(ctx, []core.Category{cat}); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	exp := core.NewExpense(core.Money{Cents: 500}, "Lunch", "", time.Now(), &cat.ID)
	if err := repo.InsertExpense(ctx, exp); err != nil {
		t.Fatalf("insert expense: %v", err)
	}

	if err := repo.SetCategoryActive(ctx, cat.ID, false); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	active, err := repo.ListActiveCategories(ctx)
	if err != nil || len(active) != 0 {
		t.Fatalf("active list = %v, %v; want empty", active, err)
	}

	// The category is still resolvable and the expense still references it.
	got, err := repo.GetCategory(ctx, cat.ID)
	if err != nil {
		t.Fatalf("get soft-deleted category: %v", err)
	}
	if got.Active {
		t.Fatal("category should be inactive")
	}
	expenses, err := repo.ListRecentExpenses(ctx, 10)
	if err != nil || len(expenses) != 1 {
		t.Fatalf("expenses = %v, %v", expenses, err)
	}
	if expenses[0].CategoryID == nil || *expenses[0].CategoryID != cat.ID {
		t.Fatal("expense lost its category reference")
	}
}

func TestUpdateCategoryPartial(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.NewCategory("Food", "fork.knife", "FF6B35", 0)
	if err := repo.InsertCategories(ctx, []core.Category{cat}); err != nil {
		t.Fatal(err)
	}

	name := "Groceries"
	if err := repo.UpdateCategory(ctx, cat.ID, &name, nil, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetCategory(ctx, cat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Groceries" || got.Icon != "fork.knife" || got.ColorHex != "FF6B35" {
		t.Fatalf("partial update touched wrong fields: %+v", got)
	}

	if err := repo.UpdateCategory(ctx, uuid.New(), &name, nil, nil); err != core.ErrCategoryNotFound {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestReorderCategories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := core.NewCategory("A", "", "000000", 0)
	b := core.NewCategory("B", "", "000000", 1)
	c := core.NewCategory("C", "", "000000", 2)
	if err := repo.InsertCategories(ctx, []core.Category{a, b, c}); err != nil {
		t.Fatal(err)
	}

	if err := repo.SetCategoryOrders(ctx, []uuid.UUID{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got, err := repo.ListActiveCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Name != "C" || got[1].Name != "A" || got[2].Name != "B" {
		t.Fatalf("unexpected order: %s %s %s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestExpenseAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cat := core.NewCategory("Food", "", "FF6B35", 0)
	if err := repo.InsertCategories(ctx, []core.Category{cat}); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for _, e := range []core.Expense{
		core.NewExpense(core.Money{Cents: 1000}, "Lunch", "", day, &cat.ID),
		core.NewExpense(core.Money{Cents: 2500}, "Dinner", "", day.Add(6*time.Hour), &cat.ID),
		core.NewExpense(core.Money{Cents: 700}, "Snack", "", day.AddDate(0, 0, 1), nil),
	} {
		if err := repo.InsertExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	start := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	total, err := repo.TotalForRange(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if total.Cents != 3500 {
		t.Fatalf("day total = %d, want 3500", total.Cents)
	}

	spending, err := repo.CategorySpendingForRange(ctx, start, start.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if spending[cat.ID].Cents != 3500 {
		t.Fatalf("category spending = %d, want 3500", spending[cat.ID].Cents)
	}

	n, err := repo.CategoryExpenseCount(ctx, cat.ID)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}
	catTotal, err := repo.CategoryTotal(ctx, cat.ID)
	if err != nil || catTotal.Cents != 3500 {
		t.Fatalf("category total = %d, %v; want 3500", catTotal.Cents, err)
	}
}

func TestSearchExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	for _, e := range []core.Expense{
		core.NewExpense(core.Money{Cents: 100}, "Morning Coffee", "", now, nil),
		core.NewExpense(core.Money{Cents: 200}, "Bus ticket", "monthly COFFEE fund", now, nil),
		core.NewExpense(core.Money{Cents: 300}, "Groceries", "", now, nil),
	} {
		if err := repo.InsertExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.SearchExpenses(ctx, "coffee")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("search returned %d results, want 2", len(got))
	}
}

func TestChangeSignal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fired := 0
	repo.OnChange(func() { fired++ })

	exp := core.NewExpense(core.Money{Cents: 100}, "Coffee", "", time.Now(), nil)
	if err := repo.InsertExpense(ctx, exp); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteExpense(ctx, exp.ID); err != nil {
		t.Fatal(err)
	}
	if fired != 2 {
		t.Fatalf("change signal fired %d times, want 2", fired)
	}
}

func TestSettingsKV(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := repo.Settings()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("get = %q, %v, %v", v, ok, err)
	}

	if err := store.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("key should be gone")
	}
}
