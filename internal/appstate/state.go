// Package appstate holds the in-memory application state: loaded
// categories and expenses, the selected date, derived analytics, and
// the latest unhandled error. All mutation happens under one mutex and
// observers receive immutable snapshots.
package appstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/services"
	"spendlog/internal/settings"
)

// Snapshot is an immutable view of the state handed to observers.
type Snapshot struct {
	Categories       []core.Category
	Expenses         []core.Expense
	SelectedDate     time.Time
	SelectedTotal    core.Money
	TodayTotal       core.Money
	MonthTotal       core.Money
	CategorySpending map[uuid.UUID]core.Money
	Settings         core.AppSettings
	IsLoading        bool
	LastError        error
}

// AppState is the single source of truth the views render from.
type AppState struct {
	mu sync.Mutex

	gateway  *services.Gateway
	settings *settings.Store
	logger   *log.Logger

	// expenseWindow caps how many recent expenses stay in memory.
	expenseWindow int

	categories   []core.Category
	expenses     []core.Expense
	selectedDate time.Time
	settingsSnap core.AppSettings

	selectedTotal    core.Money
	todayTotal       core.Money
	monthTotal       core.Money
	categorySpending map[uuid.UUID]core.Money

	isLoading bool
	lastError error

	subs      []chan Snapshot
	extraErrs []<-chan error
	done      chan struct{}
}

func New(gateway *services.Gateway, store *settings.Store, logger *log.Logger, expenseWindow int) *AppState {
	return &AppState{
		gateway:          gateway,
		settings:         store,
		logger:           logger.WithComponent(log.ComponentAppState),
		expenseWindow:    expenseWindow,
		selectedDate:     time.Now(),
		settingsSnap:     store.Current(),
		categorySpending: make(map[uuid.UUID]core.Money),
		done:             make(chan struct{}),
	}
}

// MergeErrors adds another error source to the merged last-error slot.
// Must be called before Start.
func (a *AppState) MergeErrors(ch <-chan error) {
	a.extraErrs = append(a.extraErrs, ch)
}

// Start launches the background loop that mirrors settings changes and
// merges error channels into the single last-error slot. It returns
// once the loop is running.
func (a *AppState) Start(ctx context.Context) {
	settingsCh := a.settings.Subscribe()
	for _, errCh := range a.extraErrs {
		go func(ch <-chan error) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-a.done:
					return
				case err := <-ch:
					a.setError(err)
				}
			}
		}(errCh)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.done:
				return
			case snap, ok := <-settingsCh:
				if !ok {
					return
				}
				a.mu.Lock()
				a.settingsSnap = snap
				a.mu.Unlock()
				a.publish()
			case err := <-a.gateway.Errors():
				a.setError(err)
			case err := <-a.settings.Errors():
				a.setError(err)
			}
		}
	}()
}

// Stop terminates the background loop.
func (a *AppState) Stop() {
	close(a.done)
}

// Subscribe returns a one-slot channel of state snapshots. A slow
// observer sees only the most recent state.
func (a *AppState) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}

// Current returns a snapshot of the present state.
func (a *AppState) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *AppState) snapshotLocked() Snapshot {
	spending := make(map[uuid.UUID]core.Money, len(a.categorySpending))
	for k, v := range a.categorySpending {
		spending[k] = v
	}
	return Snapshot{
		Categories:       append([]core.Category(nil), a.categories...),
		Expenses:         append([]core.Expense(nil), a.expenses...),
		SelectedDate:     a.selectedDate,
		SelectedTotal:    a.selectedTotal,
		TodayTotal:       a.todayTotal,
		MonthTotal:       a.monthTotal,
		CategorySpending: spending,
		Settings:         a.settingsSnap,
		IsLoading:        a.isLoading,
		LastError:        a.lastError,
	}
}

// LoadInitialData populates the state from storage. Categories and
// expenses load concurrently; analytics wait for both.
func (a *AppState) LoadInitialData(ctx context.Context) error {
	a.mu.Lock()
	a.isLoading = true
	a.mu.Unlock()
	a.publish()

	err := a.reload(ctx)

	a.mu.Lock()
	a.isLoading = false
	a.mu.Unlock()
	a.publish()
	return err
}

// RefreshData reloads everything without toggling the loading flag, so
// views don't flicker on background refreshes.
func (a *AppState) RefreshData(ctx context.Context) error {
	err := a.reload(ctx)
	a.publish()
	return err
}

func (a *AppState) reload(ctx context.Context) error {
	var (
		cats     []core.Category
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = a.gateway.LoadCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = a.gateway.LoadRecentExpenses(gctx, a.expenseWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		a.setError(err)
		return err
	}

	a.mu.Lock()
	a.categories = cats
	a.expenses = expenses
	a.mu.Unlock()

	a.recomputeAnalytics()
	return nil
}

// recomputeAnalytics derives the totals from the in-memory expense
// window. The totals describe the loaded window, not the full store,
// so they always agree with the rendered list.
func (a *AppState) recomputeAnalytics() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	monthStart, monthEnd := core.MonthInterval(now)

	var selected, today, month core.Money
	spending := make(map[uuid.UUID]core.Money)
	for _, e := range a.expenses {
		if core.SameDay(e.Date, a.selectedDate) {
			selected.Cents += e.Amount.Cents
			if e.CategoryID != nil {
				cur := spending[*e.CategoryID]
				spending[*e.CategoryID] = core.Money{Cents: cur.Cents + e.Amount.Cents}
			}
		}
		if core.SameDay(e.Date, now) {
			today.Cents += e.Amount.Cents
		}
		if !e.Date.Before(monthStart) && e.Date.Before(monthEnd) {
			month.Cents += e.Amount.Cents
		}
	}
	a.selectedTotal = selected
	a.todayTotal = today
	a.monthTotal = month
	a.categorySpending = spending
}

// SelectDate changes the focused day and recomputes its analytics.
func (a *AppState) SelectDate(_ context.Context, date time.Time) {
	a.mu.Lock()
	a.selectedDate = date
	a.mu.Unlock()
	a.recomputeAnalytics()
	a.publish()
}

// AddExpense validates the category against the loaded list, persists
// the expense, and reloads on success.
func (a *AppState) AddExpense(ctx context.Context, amount core.Money, name, notes string, date time.Time, categoryID *uuid.UUID) bool {
	if categoryID != nil && !a.hasCategory(*categoryID) {
		a.setError(fmt.Errorf("%w: %s", core.ErrCategoryNotFound, categoryID))
		return false
	}
	if !a.gateway.AddExpense(ctx, amount, name, notes, date, categoryID) {
		return false
	}
	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after add failed", log.FieldError, err)
	}
	return true
}

// DeleteExpense removes the expense optimistically: the in-memory list
// and analytics update first, and the previous state is restored in
// full if the store rejects the delete.
func (a *AppState) DeleteExpense(ctx context.Context, id uuid.UUID) bool {
	a.mu.Lock()
	prev := a.snapshotLocked()
	found := false
	for i, e := range a.expenses {
		if e.ID == id {
			a.expenses = append(a.expenses[:i:i], a.expenses[i+1:]...)
			found = true
			break
		}
	}
	a.mu.Unlock()
	if !found {
		return false
	}
	if err := a.recomputeOptimistic(id, prev); err != nil {
		a.logger.Debug("optimistic recompute skipped", log.FieldError, err)
	}
	a.publish()

	if !a.gateway.DeleteExpense(ctx, id) {
		a.mu.Lock()
		a.categories = prev.Categories
		a.expenses = prev.Expenses
		a.selectedTotal = prev.SelectedTotal
		a.todayTotal = prev.TodayTotal
		a.monthTotal = prev.MonthTotal
		a.categorySpending = prev.CategorySpending
		a.mu.Unlock()
		a.publish()
		return false
	}

	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after delete failed", log.FieldError, err)
	}
	return true
}

// recomputeOptimistic adjusts the derived totals locally for a removed
// expense, without touching storage.
func (a *AppState) recomputeOptimistic(id uuid.UUID, prev Snapshot) error {
	var removed *core.Expense
	for i := range prev.Expenses {
		if prev.Expenses[i].ID == id {
			removed = &prev.Expenses[i]
			break
		}
	}
	if removed == nil {
		return fmt.Errorf("expense %s not in snapshot", id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	if core.SameDay(removed.Date, a.selectedDate) {
		a.selectedTotal = core.Money{Cents: a.selectedTotal.Cents - removed.Amount.Cents}
		if removed.CategoryID != nil {
			cur := a.categorySpending[*removed.CategoryID]
			a.categorySpending[*removed.CategoryID] = core.Money{Cents: cur.Cents - removed.Amount.Cents}
		}
	}
	if core.SameDay(removed.Date, now) {
		a.todayTotal = core.Money{Cents: a.todayTotal.Cents - removed.Amount.Cents}
	}
	start, end := core.MonthInterval(now)
	if !removed.Date.Before(start) && removed.Date.Before(end) {
		a.monthTotal = core.Money{Cents: a.monthTotal.Cents - removed.Amount.Cents}
	}
	return nil
}

// AddCategory persists a category and reloads on success.
func (a *AppState) AddCategory(ctx context.Context, name, icon, colorHex string) bool {
	if !a.gateway.AddCategory(ctx, name, icon, colorHex) {
		return false
	}
	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after category add failed", log.FieldError, err)
	}
	return true
}

// UpdateCategory applies a partial category update and reloads.
func (a *AppState) UpdateCategory(ctx context.Context, id uuid.UUID, name, icon, colorHex *string) bool {
	if !a.gateway.UpdateCategory(ctx, id, name, icon, colorHex) {
		return false
	}
	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after category update failed", log.FieldError, err)
	}
	return true
}

// DeleteCategory deactivates a category and reloads. Expenses keep the
// reference, so nothing else changes.
func (a *AppState) DeleteCategory(ctx context.Context, id uuid.UUID) bool {
	if !a.gateway.DeleteCategory(ctx, id) {
		return false
	}
	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after category delete failed", log.FieldError, err)
	}
	return true
}

// ReorderCategories rewrites the display order and reloads.
func (a *AppState) ReorderCategories(ctx context.Context, ids []uuid.UUID) bool {
	if !a.gateway.ReorderCategories(ctx, ids) {
		return false
	}
	if err := a.RefreshData(ctx); err != nil {
		a.logger.Warn("refresh after reorder failed", log.FieldError, err)
	}
	return true
}

// SearchExpenses queries storage directly; results are not held in the
// state.
func (a *AppState) SearchExpenses(ctx context.Context, query string) ([]core.Expense, error) {
	results, err := a.gateway.SearchExpenses(ctx, query)
	if err != nil {
		a.setError(err)
		return nil, err
	}
	return results, nil
}

// Settings returns the settings store for typed preference mutations.
func (a *AppState) Settings() *settings.Store {
	return a.settings
}

// FormatAmount renders money per the mirrored settings.
func (a *AppState) FormatAmount(m core.Money) string {
	a.mu.Lock()
	snap := a.settingsSnap
	a.mu.Unlock()
	return snap.FormatAmount(m)
}

// SelectedDateExpenses filters the loaded window to the selected day.
func (a *AppState) SelectedDateExpenses() []core.Expense {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []core.Expense
	for _, e := range a.expenses {
		if core.SameDay(e.Date, a.selectedDate) {
			out = append(out, e)
		}
	}
	return out
}

// RecentExpenses returns up to n of the newest loaded expenses.
func (a *AppState) RecentExpenses(n int) []core.Expense {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > len(a.expenses) {
		n = len(a.expenses)
	}
	return append([]core.Expense(nil), a.expenses[:n]...)
}

// WeekDates returns the seven days of the week containing the selected
// date, starting on the configured weekday.
func (a *AppState) WeekDates() []time.Time {
	a.mu.Lock()
	day := a.selectedDate
	start := a.settingsSnap.WeekStart.Weekday()
	a.mu.Unlock()

	offset := (int(day.Weekday()) - int(start) + 7) % 7
	first := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, -offset)
	out := make([]time.Time, 7)
	for i := range out {
		out[i] = first.AddDate(0, 0, i)
	}
	return out
}

// MonthlyBudgetUsage reports spending against the monthly limit as a
// fraction. ok is false when budgets are disabled or no limit is set.
func (a *AppState) MonthlyBudgetUsage() (fraction float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.settingsSnap.Budget
	if !b.Enabled || b.MonthlyCents == nil || *b.MonthlyCents <= 0 {
		return 0, false
	}
	return float64(a.monthTotal.Cents) / float64(*b.MonthlyCents), true
}

// NearMonthlyLimit reports whether monthly spending crossed three
// quarters of the limit.
func (a *AppState) NearMonthlyLimit() bool {
	f, ok := a.MonthlyBudgetUsage()
	return ok && f > 0.75
}

// MonthlyBudgetExceeded reports whether the monthly limit is spent.
func (a *AppState) MonthlyBudgetExceeded() bool {
	f, ok := a.MonthlyBudgetUsage()
	return ok && f >= 1
}

// TodayTotal returns today's spending regardless of the selected date.
func (a *AppState) TodayTotal() core.Money {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.todayTotal
}

// DailyBudgetExceeded reports whether today's spending passed the
// daily limit. Selecting another date does not change the answer.
func (a *AppState) DailyBudgetExceeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.settingsSnap.Budget
	if !b.Enabled || b.DailyCents == nil || *b.DailyCents <= 0 {
		return false
	}
	return a.todayTotal.Cents >= *b.DailyCents
}

// LastError returns the most recent unhandled error.
func (a *AppState) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// ClearError dismisses the current error.
func (a *AppState) ClearError() {
	a.mu.Lock()
	a.lastError = nil
	a.mu.Unlock()
	a.publish()
}

// setError overwrites the last error. Errors arriving faster than the
// user dismisses them keep only the newest.
func (a *AppState) setError(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	a.lastError = err
	a.mu.Unlock()
	a.logger.Error("state error", log.FieldError, err)
	a.publish()
}

func (a *AppState) publish() {
	a.mu.Lock()
	snap := a.snapshotLocked()
	subs := make([]chan Snapshot, len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (a *AppState) hasCategory(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
