// Package storage wraps the local SQLite store: raw CRUD and aggregate
// queries over categories and expenses, plus the key-value table backing
// settings persistence. Callers that want caching, seeding and validation go
// through the services gateway instead of using this package directly.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"spendlog/internal/core"
)

// SQLiteRepository owns the database handle and fans out a did-save signal
// after every successful write so read caches can invalidate.
type SQLiteRepository struct {
	db *sql.DB

	mu        sync.Mutex
	listeners []func()
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// runs migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// OnChange registers a callback invoked after every successful write. This
// is the store's did-save signal.
func (r *SQLiteRepository) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *SQLiteRepository) notifyChange() {
	r.mu.Lock()
	fns := make([]func(), len(r.listeners))
	copy(fns, r.listeners)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ListActiveCategories returns active categories ordered by display order.
func (r *SQLiteRepository) ListActiveCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, icon, color_hex, display_order, active, created_at
		FROM categories WHERE active = 1
		ORDER BY display_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active categories: %w", err)
	}
	defer rows.Close()
	return scanCategories(rows)
}

// GetCategory returns a category by id, active or not.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id uuid.UUID) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, icon, color_hex, display_order, active, created_at
		FROM categories WHERE id = ?`, id.String())
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return core.Category{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// InsertCategories writes a batch of categories in one transaction.
func (r *SQLiteRepository) InsertCategories(ctx context.Context, cats []core.Category) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert categories: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, icon, color_hex, display_order, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID.String(), c.Name, c.Icon, c.ColorHex, c.Order, boolToInt(c.Active), c.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert categories: %w", err)
	}

	slog.InfoContext(ctx, "Categories saved to SQLite", "count", len(cats))
	r.notifyChange()
	return nil
}

// UpdateCategory applies a partial update; nil fields are left untouched.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id uuid.UUID, name, icon, colorHex *string) error {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*name))
	}
	if icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *icon)
	}
	if colorHex != nil {
		sets = append(sets, "color_hex = ?")
		args = append(args, *colorHex)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id.String())

	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrCategoryNotFound
	}
	r.notifyChange()
	return nil
}

// SetCategoryActive flips the soft-delete flag. Expenses referencing the
// category are untouched.
func (r *SQLiteRepository) SetCategoryActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET active = ? WHERE id = ?", boolToInt(active), id.String())
	if err != nil {
		return fmt.Errorf("set category active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrCategoryNotFound
	}
	r.notifyChange()
	return nil
}

// SetCategoryOrders rewrites display_order to match the position of each id.
func (r *SQLiteRepository) SetCategoryOrders(ctx context.Context, ids []uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder categories: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"UPDATE categories SET display_order = ? WHERE id = ?", i, id.String()); err != nil {
			return fmt.Errorf("reorder category %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder categories: %w", err)
	}
	r.notifyChange()
	return nil
}

// ListRecentExpenses returns the most recent expenses by date descending.
func (r *SQLiteRepository) ListRecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, name, notes, date, category_id, created_at
		FROM expenses ORDER BY date DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// InsertExpense persists one expense.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	var categoryID any
	if e.CategoryID != nil {
		categoryID = e.CategoryID.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount_cents, name, notes, date, category_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Amount.Cents, e.Name, e.Notes, e.Date.Unix(), categoryID, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID, "name", e.Name, "amount_cents", e.Amount.Cents)
	r.notifyChange()
	return nil
}

// DeleteExpense removes the expense permanently.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete expense: no expense with id %s", id)
	}
	r.notifyChange()
	return nil
}

// TotalForRange sums expense amounts with date in [start, end).
func (r *SQLiteRepository) TotalForRange(ctx context.Context, start, end time.Time) (core.Money, error) {
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(amount_cents) FROM expenses WHERE date >= ? AND date < ?",
		start.Unix(), end.Unix()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("total for range: %w", err)
	}
	return core.Money{Cents: cents.Int64}, nil
}

// CategorySpendingForRange maps category id to summed amount over [start, end).
// Expenses without a category are skipped.
func (r *SQLiteRepository) CategorySpendingForRange(ctx context.Context, start, end time.Time) (map[uuid.UUID]core.Money, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id, SUM(amount_cents) FROM expenses
		WHERE date >= ? AND date < ? AND category_id IS NOT NULL
		GROUP BY category_id`, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("category spending for range: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]core.Money)
	for rows.Next() {
		var idStr string
		var cents int64
		if err := rows.Scan(&idStr, &cents); err != nil {
			return nil, fmt.Errorf("scan category spending: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse category id %q: %w", idStr, err)
		}
		out[id] = core.Money{Cents: cents}
	}
	return out, rows.Err()
}

// CategoryExpenseCount counts expenses referencing the category.
func (r *SQLiteRepository) CategoryExpenseCount(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expenses WHERE category_id = ?", id.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("category expense count: %w", err)
	}
	return n, nil
}

// CategoryTotal sums all expense amounts referencing the category.
func (r *SQLiteRepository) CategoryTotal(ctx context.Context, id uuid.UUID) (core.Money, error) {
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(amount_cents) FROM expenses WHERE category_id = ?", id.String()).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("category total: %w", err)
	}
	return core.Money{Cents: cents.Int64}, nil
}

// SearchExpenses finds expenses whose name or notes contain the query,
// case-insensitively, newest first.
func (r *SQLiteRepository) SearchExpenses(ctx context.Context, query string) ([]core.Expense, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, name, notes, date, category_id, created_at
		FROM expenses
		WHERE lower(name) LIKE ? OR lower(notes) LIKE ?
		ORDER BY date DESC, created_at DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// Settings returns the key-value view over the kv_settings table.
func (r *SQLiteRepository) Settings() *SettingsKV {
	return &SettingsKV{repo: r}
}

// SettingsKV implements kv.Store on top of the repository's kv_settings table.
type SettingsKV struct {
	repo *SQLiteRepository
}

func (s *SettingsKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.repo.db.QueryRowContext(ctx,
		"SELECT value FROM kv_settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsKV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.repo.db.ExecContext(ctx, `
		INSERT INTO kv_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (s *SettingsKV) Remove(ctx context.Context, key string) error {
	if _, err := s.repo.db.ExecContext(ctx, "DELETE FROM kv_settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("kv remove %q: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		idStr     string
		active    int
		createdAt int64
	)
	if err := row.Scan(&idStr, &c.Name, &c.Icon, &c.ColorHex, &c.Order, &active, &createdAt); err != nil {
		return core.Category{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse category id %q: %w", idStr, err)
	}
	c.ID = id
	c.Active = active != 0
	c.CreatedAt = time.Unix(createdAt, 0)
	return c, nil
}

func scanCategories(rows *sql.Rows) ([]core.Category, error) {
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var out []core.Expense
	for rows.Next() {
		var (
			e          core.Expense
			idStr      string
			date       int64
			categoryID sql.NullString
			createdAt  int64
		)
		if err := rows.Scan(&idStr, &e.Amount.Cents, &e.Name, &e.Notes, &date, &categoryID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse expense id %q: %w", idStr, err)
		}
		e.ID = id
		e.Date = time.Unix(date, 0)
		e.CreatedAt = time.Unix(createdAt, 0)
		if categoryID.Valid {
			cid, err := uuid.Parse(categoryID.String)
			if err != nil {
				return nil, fmt.Errorf("parse expense category id %q: %w", categoryID.String, err)
			}
			e.CategoryID = &cid
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
