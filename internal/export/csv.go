// Package export renders expense data to files for sharing.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
	"spendlog/internal/log"
)

// Renderer produces one export format. CSV is the only built-in;
// other formats plug in behind the same interface.
type Renderer interface {
	// Prefix is the file name stem, e.g. "expenses".
	Prefix() string
	// Extension is the file suffix without the dot.
	Extension() string
	// Render writes the report body.
	Render(w *os.File, expenses []core.Expense, categories []core.Category) error
}

// Exporter writes reports into a target directory with timestamped
// names so repeated exports never clobber each other. Failures are
// held in the exporter's own error slot; export problems never mix
// with the application's data errors.
type Exporter struct {
	dir    string
	logger *log.Logger

	mu      sync.Mutex
	lastErr error
}

func NewExporter(dir string, logger *log.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: logger.WithComponent(log.ComponentExport),
	}
}

// Export renders the expenses and returns the written file's path.
func (e *Exporter) Export(ctx context.Context, r Renderer, expenses []core.Expense, categories []core.Category) (string, error) {
	path, err := e.export(ctx, r, expenses, categories)
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	return path, err
}

// LastError returns the outcome of the most recent export.
func (e *Exporter) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Exporter) export(ctx context.Context, r Renderer, expenses []core.Expense, categories []core.Category) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.%s", r.Prefix(), time.Now().Format("20060102_150405"), r.Extension())
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := r.Render(f, expenses, categories); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("render export: %w", err)
	}
	e.logger.Info("expenses exported", log.FieldPath, path, log.FieldCount, len(expenses))
	return path, nil
}

// CSVRenderer writes one row per expense with the category resolved to
// its name.
type CSVRenderer struct{}

func (CSVRenderer) Prefix() string    { return "expenses" }
func (CSVRenderer) Extension() string { return "csv" }

func (CSVRenderer) Render(w *os.File, expenses []core.Expense, categories []core.Category) error {
	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "name", "category", "amount", "notes"}); err != nil {
		return err
	}
	for _, e := range expenses {
		category := ""
		if e.CategoryID != nil {
			category = names[*e.CategoryID]
		}
		row := []string{
			e.Date.Format(time.RFC3339),
			e.Name,
			category,
			fmt.Sprintf("%.2f", e.Amount.Units()),
			e.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SummaryRenderer writes one row per category with its expense count
// and total. Categories without expenses are included so the report
// covers the whole set.
type SummaryRenderer struct{}

func (SummaryRenderer) Prefix() string    { return "categories" }
func (SummaryRenderer) Extension() string { return "csv" }

func (SummaryRenderer) Render(w *os.File, expenses []core.Expense, categories []core.Category) error {
	counts := make(map[uuid.UUID]int, len(categories))
	totals := make(map[uuid.UUID]int64, len(categories))
	var uncatCount int
	var uncatTotal int64
	for _, e := range expenses {
		if e.CategoryID == nil {
			uncatCount++
			uncatTotal += e.Amount.Cents
			continue
		}
		counts[*e.CategoryID]++
		totals[*e.CategoryID] += e.Amount.Cents
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"category", "expenses", "total"}); err != nil {
		return err
	}
	for _, c := range categories {
		row := []string{
			c.Name,
			fmt.Sprintf("%d", counts[c.ID]),
			fmt.Sprintf("%.2f", core.Money{Cents: totals[c.ID]}.Units()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	if uncatCount > 0 {
		row := []string{
			"(uncategorized)",
			fmt.Sprintf("%d", uncatCount),
			fmt.Sprintf("%.2f", core.Money{Cents: uncatTotal}.Units()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReportRenderer writes the full report: the expense rows followed by a
// blank line and the category summary.
type ReportRenderer struct{}

func (ReportRenderer) Prefix() string    { return "report" }
func (ReportRenderer) Extension() string { return "csv" }

func (ReportRenderer) Render(w *os.File, expenses []core.Expense, categories []core.Category) error {
	if err := (CSVRenderer{}).Render(w, expenses, categories); err != nil {
		return err
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return SummaryRenderer{}.Render(w, expenses, categories)
}
