package appstate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
)

// Sheet identifies a modal surface managed by the adapter.
type Sheet string

const (
	SheetAddExpense    Sheet = "add_expense"
	SheetSearch        Sheet = "search"
	SheetQuickActions  Sheet = "quick_actions"
	SheetProfile       Sheet = "profile"
	SheetTodayExpenses Sheet = "today_expenses"
	SheetAllExpenses   Sheet = "all_expenses"
	SheetStats         Sheet = "stats"
)

// ViewAdapter tracks which modal sheets are open on top of the state.
// When a new error lands, the transient input sheets close so the error
// surface is never hidden behind a modal. Profile editing and the
// browsing sheets stay up; a failed avatar upload should not throw the
// user out of the form.
type ViewAdapter struct {
	mu    sync.Mutex
	state *AppState
	open  map[Sheet]bool
}

func NewViewAdapter(state *AppState) *ViewAdapter {
	return &ViewAdapter{
		state: state,
		open:  make(map[Sheet]bool),
	}
}

// Watch consumes state snapshots until ctx is cancelled, auto-closing
// sheets whenever an error appears.
func (v *ViewAdapter) Watch(ctx context.Context) {
	snapshots := v.state.Subscribe()
	go func() {
		var lastSeen error
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if snap.LastError != nil && snap.LastError != lastSeen {
					v.dismissForError()
				}
				lastSeen = snap.LastError
			}
		}
	}()
}

// Open presents a sheet.
func (v *ViewAdapter) Open(s Sheet) {
	v.mu.Lock()
	v.open[s] = true
	v.mu.Unlock()
}

// Close dismisses a sheet.
func (v *ViewAdapter) Close(s Sheet) {
	v.mu.Lock()
	delete(v.open, s)
	v.mu.Unlock()
}

// IsOpen reports whether a sheet is presented.
func (v *ViewAdapter) IsOpen(s Sheet) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open[s]
}

// transient reports whether a sheet is an input flow dismissed when an
// error surfaces.
func transient(s Sheet) bool {
	switch s {
	case SheetAddExpense, SheetSearch, SheetQuickActions:
		return true
	}
	return false
}

func (v *ViewAdapter) dismissForError() {
	v.mu.Lock()
	for s := range v.open {
		if transient(s) {
			delete(v.open, s)
		}
	}
	v.mu.Unlock()
}

// SubmitExpense runs the add-expense flow and closes the add sheet on
// success. A failure surfaces through the state's error slot, which
// the watcher turns into a dismissal.
func (v *ViewAdapter) SubmitExpense(ctx context.Context, amount core.Money, name, notes string, date time.Time, categoryID *uuid.UUID) bool {
	ok := v.state.AddExpense(ctx, amount, name, notes, date, categoryID)
	if ok {
		v.Close(SheetAddExpense)
	}
	return ok
}
