package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
	"spendlog/internal/export"
	"spendlog/internal/log"
)

const dateParamLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// lastErrorOr drains the state's last error for a failed mutation.
func (s *Server) lastErrorOr(fallback string) error {
	if err := s.state.LastError(); err != nil {
		s.state.ClearError()
		return err
	}
	return fmt.Errorf("%s", fallback)
}

type expenseDTO struct {
	ID          uuid.UUID  `json:"id"`
	AmountCents int64      `json:"amountCents"`
	Amount      string     `json:"amount"`
	Name        string     `json:"name"`
	Notes       string     `json:"notes,omitempty"`
	Date        time.Time  `json:"date"`
	CategoryID  *uuid.UUID `json:"categoryId,omitempty"`
}

func (s *Server) toExpenseDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID:          e.ID,
		AmountCents: e.Amount.Cents,
		Amount:      s.state.FormatAmount(e.Amount),
		Name:        e.Name,
		Notes:       e.Notes,
		Date:        e.Date,
		CategoryID:  e.CategoryID,
	}
}

func (s *Server) toExpenseDTOs(expenses []core.Expense) []expenseDTO {
	out := make([]expenseDTO, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, s.toExpenseDTO(e))
	}
	return out
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Current()
	lastError := ""
	if snap.LastError != nil {
		lastError = snap.LastError.Error()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories":   snap.Categories,
		"expenses":     s.toExpenseDTOs(snap.Expenses),
		"selectedDate": snap.SelectedDate,
		"isLoading":    snap.IsLoading,
		"lastError":    lastError,
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.toExpenseDTOs(s.state.RecentExpenses(limit)))
}

type createExpenseRequest struct {
	Amount     string     `json:"amount"`
	Name       string     `json:"name"`
	Notes      string     `json:"notes"`
	Date       time.Time  `json:"date"`
	CategoryID *uuid.UUID `json:"categoryId"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	if !s.adapter.SubmitExpense(r.Context(), amount, req.Name, req.Notes, date, req.CategoryID) {
		writeError(w, http.StatusBadRequest, s.lastErrorOr("expense rejected"))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid expense id"))
		return
	}
	if !s.state.DeleteExpense(r.Context(), id) {
		writeError(w, http.StatusNotFound, s.lastErrorOr("expense not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearchExpenses(w http.ResponseWriter, r *http.Request) {
	results, err := s.state.SearchExpenses(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toExpenseDTOs(results))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Current().Categories)
}

type categoryRequest struct {
	Name     *string `json:"name"`
	Icon     *string `json:"icon"`
	ColorHex *string `json:"colorHex"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	name, icon, color := "", "", ""
	if req.Name != nil {
		name = *req.Name
	}
	if req.Icon != nil {
		icon = *req.Icon
	}
	if req.ColorHex != nil {
		color = *req.ColorHex
	}
	if !s.state.AddCategory(r.Context(), name, icon, color) {
		writeError(w, http.StatusBadRequest, s.lastErrorOr("category rejected"))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid category id"))
		return
	}
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !s.state.UpdateCategory(r.Context(), id, req.Name, req.Icon, req.ColorHex) {
		writeError(w, http.StatusBadRequest, s.lastErrorOr("category update rejected"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid category id"))
		return
	}
	if !s.state.DeleteCategory(r.Context(), id) {
		writeError(w, http.StatusNotFound, s.lastErrorOr("category not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !s.state.ReorderCategories(r.Context(), req.IDs) {
		writeError(w, http.StatusBadRequest, s.lastErrorOr("reorder rejected"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Current()
	spending := make(map[string]int64, len(snap.CategorySpending))
	for id, m := range snap.CategorySpending {
		spending[id.String()] = m.Cents
	}
	usage, hasBudget := s.state.MonthlyBudgetUsage()
	writeJSON(w, http.StatusOK, map[string]any{
		"selectedDate":          snap.SelectedDate.Format(dateParamLayout),
		"selectedTotalCents":    snap.SelectedTotal.Cents,
		"selectedTotal":         s.state.FormatAmount(snap.SelectedTotal),
		"todayTotalCents":       snap.TodayTotal.Cents,
		"todayTotal":            s.state.FormatAmount(snap.TodayTotal),
		"monthTotalCents":       snap.MonthTotal.Cents,
		"monthTotal":            s.state.FormatAmount(snap.MonthTotal),
		"categorySpendingCents": spending,
		"weekDates":             s.state.WeekDates(),
		"hasBudget":             hasBudget,
		"budgetUsage":           usage,
		"nearMonthlyLimit":      s.state.NearMonthlyLimit(),
		"monthlyBudgetExceeded": s.state.MonthlyBudgetExceeded(),
		"dailyBudgetExceeded":   s.state.DailyBudgetExceeded(),
	})
}

func (s *Server) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	date, err := time.ParseInLocation(dateParamLayout, req.Date, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid date %q, want YYYY-MM-DD", req.Date))
		return
	}
	s.state.SelectDate(r.Context(), date)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Settings().Current())
}

type updateSettingsRequest struct {
	Currency      *core.Currency             `json:"currency"`
	Theme         *core.AppTheme             `json:"theme"`
	Language      *core.AppLanguage          `json:"language"`
	NumberFormat  *core.NumberFormat         `json:"numberFormat"`
	WeekStart     *core.WeekStart            `json:"weekStart"`
	ProfileName   *string                    `json:"profileName"`
	ProfileEmail  *string                    `json:"profileEmail"`
	Budget        *core.BudgetSettings       `json:"budgetSettings"`
	Notifications *core.NotificationSettings `json:"notificationSettings"`
	Privacy       *core.PrivacySettings      `json:"privacySettings"`
}

// handleUpdateSettings applies each provided field through its typed
// mutator. Unknown or invalid values fail the whole request.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	store := s.state.Settings()

	if req.Currency != nil && !req.Currency.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown currency %q", *req.Currency))
		return
	}
	if req.Currency != nil {
		store.SetCurrency(*req.Currency)
	}
	if req.Theme != nil {
		store.SetTheme(*req.Theme)
	}
	if req.Language != nil {
		store.SetLanguage(*req.Language)
	}
	if req.NumberFormat != nil {
		store.SetNumberFormat(*req.NumberFormat)
	}
	if req.WeekStart != nil {
		store.SetWeekStart(*req.WeekStart)
	}
	if req.ProfileName != nil || req.ProfileEmail != nil {
		current := store.Current().UserProfile
		name := current.Name
		if req.ProfileName != nil {
			name = *req.ProfileName
		}
		email := current.Email
		if req.ProfileEmail != nil {
			email = req.ProfileEmail
		}
		if !store.UpdateProfile(name, email) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid profile"))
			return
		}
	}
	if req.Budget != nil && !store.SetBudget(*req.Budget) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid budget"))
		return
	}
	if req.Notifications != nil {
		store.SetNotifications(*req.Notifications)
	}
	if req.Privacy != nil {
		store.SetPrivacy(*req.Privacy)
	}

	writeJSON(w, http.StatusOK, store.Current())
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if !s.state.Settings().ResetAllSettings(r.Context()) {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("reset failed"))
		return
	}
	writeJSON(w, http.StatusOK, s.state.Settings().Current())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var renderer export.Renderer
	switch kind := r.URL.Query().Get("type"); kind {
	case "", "expenses":
		renderer = export.CSVRenderer{}
	case "categories":
		renderer = export.SummaryRenderer{}
	case "report":
		renderer = export.ReportRenderer{}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown export type %q", kind))
		return
	}

	snap := s.state.Current()
	path, err := s.exporter.Export(r.Context(), renderer, snap.Expenses, snap.Categories)
	if err != nil {
		s.logger.Error("export failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": path})
}
