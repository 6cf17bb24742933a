package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/cache"
	"spendlog/internal/core"
	"spendlog/internal/log"
)

// Store is the persistence port the gateway drives. The SQLite
// repository satisfies it; tests substitute a fake.
type Store interface {
	ListActiveCategories(ctx context.Context) ([]core.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error)
	InsertCategories(ctx context.Context, cats []core.Category) error
	UpdateCategory(ctx context.Context, id uuid.UUID, name, icon, colorHex *string) error
	SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) error
	SetCategoryOrders(ctx context.Context, ids []uuid.UUID) error

	ListRecentExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	InsertExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id uuid.UUID) error

	TotalForRange(ctx context.Context, start, end time.Time) (core.Money, error)
	CategorySpendingForRange(ctx context.Context, start, end time.Time) (map[uuid.UUID]core.Money, error)
	CategoryExpenseCount(ctx context.Context, id uuid.UUID) (int64, error)
	CategoryTotal(ctx context.Context, id uuid.UUID) (core.Money, error)
	SearchExpenses(ctx context.Context, query string) ([]core.Expense, error)
}

// Gateway mediates all data access for the application state. Mutators
// return a success flag and push failures onto the error channel;
// queries return values and errors directly.
type Gateway struct {
	store    Store
	catCache *cache.Value[[]core.Category]
	logger   *log.Logger
	errors   chan error
}

func NewGateway(store Store, cacheTTL time.Duration, logger *log.Logger) *Gateway {
	return &Gateway{
		store:    store,
		catCache: cache.NewValue[[]core.Category](cacheTTL),
		logger:   logger.WithComponent(log.ComponentGateway),
		errors:   make(chan error, 1),
	}
}

// Errors returns the gateway's error channel. One slot; newest wins.
func (g *Gateway) Errors() <-chan error {
	return g.errors
}

// InvalidateCategoryCache drops the cached category list. Wired to the
// repository's change signal so external writes are picked up.
func (g *Gateway) InvalidateCategoryCache() {
	g.catCache.Invalidate()
}

// LoadCategories returns active categories ordered for display. The
// result is cached; an empty database is seeded with the default set
// on first load.
func (g *Gateway) LoadCategories(ctx context.Context) ([]core.Category, error) {
	if cats, ok := g.catCache.Get(); ok {
		return cats, nil
	}

	cats, err := g.store.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(cats) == 0 {
		seed := core.DefaultCategories()
		if err := g.store.InsertCategories(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed default categories: %w", err)
		}
		g.logger.Info("default categories seeded", log.FieldCount, len(seed))
		cats, err = g.store.ListActiveCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
	}

	g.catCache.Set(cats)
	return cats, nil
}

// AddCategory creates a category at the end of the display order.
// Duplicate names are rejected case-insensitively.
func (g *Gateway) AddCategory(ctx context.Context, name, icon, colorHex string) bool {
	name = strings.TrimSpace(name)
	if err := core.ValidateCategoryName(name); err != nil {
		g.fail(err)
		return false
	}

	existing, err := g.LoadCategories(ctx)
	if err != nil {
		g.fail(err)
		return false
	}
	maxOrder := -1
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			g.fail(fmt.Errorf("%w: %s", core.ErrDuplicateCategory, name))
			return false
		}
		if c.Order > maxOrder {
			maxOrder = c.Order
		}
	}

	cat := core.NewCategory(name, icon, colorHex, maxOrder+1)
	if err := g.store.InsertCategories(ctx, []core.Category{cat}); err != nil {
		g.fail(fmt.Errorf("add category: %w", err))
		return false
	}
	g.catCache.Invalidate()
	g.logger.Info("category added", log.FieldCategoryID, cat.ID)
	return true
}

// UpdateCategory applies a partial update. Nil fields keep their value.
func (g *Gateway) UpdateCategory(ctx context.Context, id uuid.UUID, name, icon, colorHex *string) bool {
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if err := core.ValidateCategoryName(trimmed); err != nil {
			g.fail(err)
			return false
		}
		name = &trimmed
	}
	if err := g.store.UpdateCategory(ctx, id, name, icon, colorHex); err != nil {
		g.fail(fmt.Errorf("update category: %w", err))
		return false
	}
	g.catCache.Invalidate()
	return true
}

// DeleteCategory deactivates a category. Existing expenses keep their
// reference; the category simply stops appearing in pickers.
func (g *Gateway) DeleteCategory(ctx context.Context, id uuid.UUID) bool {
	if err := g.store.SetCategoryActive(ctx, id, false); err != nil {
		g.fail(fmt.Errorf("delete category: %w", err))
		return false
	}
	g.catCache.Invalidate()
	g.logger.Info("category deactivated", log.FieldCategoryID, id)
	return true
}

// ReorderCategories rewrites the display order to match ids.
func (g *Gateway) ReorderCategories(ctx context.Context, ids []uuid.UUID) bool {
	if err := g.store.SetCategoryOrders(ctx, ids); err != nil {
		g.fail(fmt.Errorf("reorder categories: %w", err))
		return false
	}
	g.catCache.Invalidate()
	return true
}

// LoadRecentExpenses returns the newest expenses up to limit.
func (g *Gateway) LoadRecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	expenses, err := g.store.ListRecentExpenses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return expenses, nil
}

// AddExpense validates and stores a new expense.
func (g *Gateway) AddExpense(ctx context.Context, amount core.Money, name, notes string, date time.Time, categoryID *uuid.UUID) bool {
	name = strings.TrimSpace(name)
	if err := core.ValidateExpenseInput(amount, name, date, time.Now()); err != nil {
		g.fail(err)
		return false
	}
	e := core.NewExpense(amount, name, strings.TrimSpace(notes), date, categoryID)
	if err := g.store.InsertExpense(ctx, e); err != nil {
		g.fail(fmt.Errorf("add expense: %w", err))
		return false
	}
	g.logger.Info("expense added", log.FieldExpenseID, e.ID, log.FieldAmountCents, amount.Cents)
	return true
}

// DeleteExpense removes an expense permanently.
func (g *Gateway) DeleteExpense(ctx context.Context, id uuid.UUID) bool {
	if err := g.store.DeleteExpense(ctx, id); err != nil {
		g.fail(fmt.Errorf("delete expense: %w", err))
		return false
	}
	g.logger.Info("expense deleted", log.FieldExpenseID, id)
	return true
}

// TotalForDate sums spending on a calendar day.
func (g *Gateway) TotalForDate(ctx context.Context, day time.Time) (core.Money, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return g.store.TotalForRange(ctx, start, start.AddDate(0, 0, 1))
}

// TotalForCurrentMonth sums spending in the month containing now.
func (g *Gateway) TotalForCurrentMonth(ctx context.Context, now time.Time) (core.Money, error) {
	start, end := core.MonthInterval(now)
	return g.store.TotalForRange(ctx, start, end)
}

// CategorySpendingForDate breaks down a day's spending by category.
func (g *Gateway) CategorySpendingForDate(ctx context.Context, day time.Time) (map[uuid.UUID]core.Money, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return g.store.CategorySpendingForRange(ctx, start, start.AddDate(0, 0, 1))
}

// CategoryExpenseCount reports how many expenses reference a category.
func (g *Gateway) CategoryExpenseCount(ctx context.Context, id uuid.UUID) (int64, error) {
	return g.store.CategoryExpenseCount(ctx, id)
}

// CategoryTotal sums all spending in a category.
func (g *Gateway) CategoryTotal(ctx context.Context, id uuid.UUID) (core.Money, error) {
	return g.store.CategoryTotal(ctx, id)
}

// SearchExpenses matches name and notes case-insensitively.
func (g *Gateway) SearchExpenses(ctx context.Context, query string) ([]core.Expense, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return g.store.SearchExpenses(ctx, query)
}

func (g *Gateway) fail(err error) {
	g.logger.Error("gateway error", log.FieldError, err)
	select {
	case g.errors <- err:
	default:
		select {
		case <-g.errors:
		default:
		}
		select {
		case g.errors <- err:
		default:
		}
	}
}
