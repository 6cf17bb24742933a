package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxExpenseNameLen bounds the user-facing expense title.
	MaxExpenseNameLen = 100

	// MaxAmountCents is one million currency units expressed in cents.
	MaxAmountCents int64 = 100_000_000
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountTooLarge    = errors.New("amount exceeds maximum")
	ErrEmptyName         = errors.New("empty name")
	ErrNameTooLong       = errors.New("name too long")
	ErrDateOutOfRange    = errors.New("date outside allowed window")
	ErrDuplicateCategory = errors.New("category with this name already exists")
	ErrCategoryNotFound  = errors.New("category not found")
)

type (
	// Category is a user-defined expense bucket. Categories are never
	// physically removed: Active=false marks a soft delete so historical
	// expenses keep resolving their references.
	Category struct {
		ID        uuid.UUID
		Name      string
		Icon      string
		ColorHex  string
		Order     int
		Active    bool
		CreatedAt time.Time
	}

	// Expense is a single recorded spending. CategoryID is a weak
	// back-reference: the category may be inactive or nil, never owned.
	Expense struct {
		ID         uuid.UUID
		Amount     Money
		Name       string
		Notes      string
		Date       time.Time
		CategoryID *uuid.UUID
		CreatedAt  time.Time
	}
)

// NewCategory builds an active category with a fresh identifier.
func NewCategory(name, icon, colorHex string, order int) Category {
	return Category{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Icon:      icon,
		ColorHex:  colorHex,
		Order:     order,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// NewExpense builds an expense with a fresh identifier. Validation is the
// caller's job; see ValidateExpenseInput.
func NewExpense(amount Money, name, notes string, date time.Time, categoryID *uuid.UUID) Expense {
	return Expense{
		ID:         uuid.New(),
		Amount:     amount,
		Name:       strings.TrimSpace(name),
		Notes:      notes,
		Date:       date,
		CategoryID: categoryID,
		CreatedAt:  time.Now(),
	}
}

// ValidateCategoryName checks the non-empty-after-trim invariant.
func ValidateCategoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

// ValidateExpenseInput checks amount bounds, name and the date window before
// anything touches the store. The window is deliberately lenient at the top,
// up to one day ahead of now, to absorb next-day timezone edge cases. It is
// only enforced at creation time.
func ValidateExpenseInput(amount Money, name string, date time.Time, now time.Time) error {
	if amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cents > MaxAmountCents {
		return ErrAmountTooLarge
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxExpenseNameLen {
		return ErrNameTooLong
	}
	startOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	tomorrow := now.AddDate(0, 0, 1)
	if date.Before(startOfYear) || date.After(tomorrow) {
		return ErrDateOutOfRange
	}
	return nil
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MonthInterval returns the half-open [start, end) interval of the calendar
// month containing t.
func MonthInterval(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// defaultCategorySeed is the fixed set installed on first launch, in display
// order. Icon tokens are opaque to the core; colors are 24-bit hex.
var defaultCategorySeed = []struct {
	Name     string
	Icon     string
	ColorHex string
}{
	{"Food", "fork.knife", "FF6B35"},
	{"Transport", "car.fill", "007AFF"},
	{"Housing", "house.fill", "34C759"},
	{"Shopping", "bag.fill", "FF2D92"},
	{"Entertainment", "tv.fill", "AF52DE"},
	{"Health", "heart.fill", "FF3B30"},
	{"Education", "book.fill", "5856D6"},
	{"Travel", "airplane", "00C7BE"},
}

// DefaultCategories returns the seed set with orders 0..7.
func DefaultCategories() []Category {
	out := make([]Category, len(defaultCategorySeed))
	for i, d := range defaultCategorySeed {
		out[i] = NewCategory(d.Name, d.Icon, d.ColorHex, i)
	}
	return out
}
