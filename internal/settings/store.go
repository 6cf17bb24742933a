package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"spendlog/internal/bus"
	"spendlog/internal/core"
	"spendlog/internal/kv"
	"spendlog/internal/log"
)

const (
	// settingsKey is the current persistence key. The legacy key is
	// kept so installations from before the schema change migrate
	// transparently on first load.
	settingsKey       = "AppSettings_v2"
	legacySettingsKey = "AppSettings"

	// Delays before a change event is dispatched. Currency and theme
	// changes ripple through every rendered amount, so they settle a
	// bit longer than lightweight preference flips.
	keyEventDelay  = 300 * time.Millisecond
	fastEventDelay = 100 * time.Millisecond
)

// Store owns the application settings. All reads return snapshots and
// all writes go through typed mutators, so callers never share mutable
// state. Persistence is debounced: a burst of changes produces one
// write once the burst settles.
type Store struct {
	mu         sync.Mutex
	current    core.AppSettings
	isUpdating bool

	store      kv.Store
	dispatcher *bus.Dispatcher
	logger     *log.Logger

	debounce     time.Duration
	persistTimer *time.Timer

	subs   []chan core.AppSettings
	errors chan error
	closed bool
}

// NewStore loads persisted settings (migrating from the legacy key if
// needed) and returns a ready store. A load failure falls back to
// defaults rather than blocking startup; the error is reported on the
// Errors channel.
func NewStore(ctx context.Context, store kv.Store, dispatcher *bus.Dispatcher, logger *log.Logger, debounce time.Duration) *Store {
	s := &Store{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger.WithComponent(log.ComponentSettings),
		debounce:   debounce,
		errors:     make(chan error, 1),
	}
	s.current = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) core.AppSettings {
	data, ok, err := s.store.Get(ctx, settingsKey)
	if err != nil {
		s.reportError(fmt.Errorf("load settings: %w", err))
		return core.DefaultSettings()
	}
	if ok {
		var loaded core.AppSettings
		if err := json.Unmarshal(data, &loaded); err != nil {
			s.reportError(fmt.Errorf("decode settings: %w", err))
			return core.DefaultSettings()
		}
		s.logger.Debug("settings loaded", "key", settingsKey)
		return loaded
	}

	// No current-format record. Try the legacy key and migrate it.
	legacy, ok, err := s.store.Get(ctx, legacySettingsKey)
	if err == nil && ok {
		var loaded core.AppSettings
		if err := json.Unmarshal(legacy, &loaded); err == nil {
			if err := s.persistNow(ctx, loaded); err != nil {
				s.reportError(err)
			} else if err := s.store.Remove(ctx, legacySettingsKey); err != nil {
				s.reportError(fmt.Errorf("remove legacy settings: %w", err))
			}
			s.logger.Info("settings migrated from legacy key")
			return loaded
		}
	}

	// First run. Persist defaults immediately so the record exists
	// before any debounced write.
	defaults := core.DefaultSettings()
	if err := s.persistNow(ctx, defaults); err != nil {
		s.reportError(err)
	}
	s.logger.Info("default settings initialized")
	return defaults
}

// Current returns a snapshot of the active settings.
func (s *Store) Current() core.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe returns a channel receiving a settings snapshot after each
// applied change. The channel holds one slot; slow consumers see only
// the latest state.
func (s *Store) Subscribe() <-chan core.AppSettings {
	ch := make(chan core.AppSettings, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Errors returns the store's error channel. It holds one slot; an
// unread error is replaced by a newer one.
func (s *Store) Errors() <-chan error {
	return s.errors
}

// SetCurrency switches the display currency. Returns false when the
// value is invalid or unchanged.
func (s *Store) SetCurrency(c core.Currency) bool {
	if !c.Valid() {
		s.reportError(fmt.Errorf("invalid currency %q", c))
		return false
	}
	return s.apply(func(cur *core.AppSettings) bool {
		if cur.Currency == c {
			return false
		}
		cur.Currency = c
		return true
	}, bus.NewEvent(bus.EventCurrencyChanged, string(c)), keyEventDelay)
}

// SetTheme switches the UI theme.
func (s *Store) SetTheme(t core.AppTheme) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		if cur.Theme == t {
			return false
		}
		cur.Theme = t
		return true
	}, bus.NewEvent(bus.EventThemeChanged, string(t)), keyEventDelay)
}

// SetLanguage switches the display language.
func (s *Store) SetLanguage(l core.AppLanguage) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		if cur.Language == l {
			return false
		}
		cur.Language = l
		return true
	}, bus.NewEvent(bus.EventLanguageChanged, string(l)), fastEventDelay)
}

// SetNumberFormat switches how amounts are grouped and rounded.
func (s *Store) SetNumberFormat(f core.NumberFormat) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		if cur.NumberFormat == f {
			return false
		}
		cur.NumberFormat = f
		return true
	}, bus.Event{}, 0)
}

// SetWeekStart switches the first day of the week used by date views.
func (s *Store) SetWeekStart(w core.WeekStart) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		if cur.WeekStart == w {
			return false
		}
		cur.WeekStart = w
		return true
	}, bus.Event{}, 0)
}

// UpdateProfile sets the user's display name and optional email.
// Returns false when the email is present but malformed.
func (s *Store) UpdateProfile(name string, email *string) bool {
	if email != nil && !core.ValidEmail(*email) {
		s.reportError(fmt.Errorf("invalid email address"))
		return false
	}
	return s.apply(func(cur *core.AppSettings) bool {
		cur.UserProfile.Name = name
		cur.UserProfile.Email = email
		return true
	}, bus.Event{}, 0)
}

// SetAvatar replaces the profile avatar image bytes.
func (s *Store) SetAvatar(image []byte) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		cur.UserProfile.AvatarImage = image
		return true
	}, bus.Event{}, 0)
}

// SetBudget replaces the budget settings. Limits must be positive when set.
func (s *Store) SetBudget(b core.BudgetSettings) bool {
	if !validBudgetCap(b.DailyCents) || !validBudgetCap(b.MonthlyCents) {
		s.reportError(fmt.Errorf("budget limits must be positive"))
		return false
	}
	return s.apply(func(cur *core.AppSettings) bool {
		cur.Budget = b
		return true
	}, bus.NewEvent(bus.EventBudgetChanged, fmt.Sprintf("enabled=%t", b.Enabled)), fastEventDelay)
}

// SetNotifications replaces the notification preferences.
func (s *Store) SetNotifications(n core.NotificationSettings) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		cur.Notifications = n
		return true
	}, bus.NewEvent(bus.EventNotificationsChanged, fmt.Sprintf("enabled=%t", n.Enabled)), fastEventDelay)
}

// SetPrivacy replaces the privacy preferences.
func (s *Store) SetPrivacy(p core.PrivacySettings) bool {
	return s.apply(func(cur *core.AppSettings) bool {
		cur.Privacy = p
		return true
	}, bus.Event{}, 0)
}

// ResetAllSettings restores defaults and persists them immediately.
func (s *Store) ResetAllSettings(ctx context.Context) bool {
	s.mu.Lock()
	if s.isUpdating {
		s.mu.Unlock()
		s.logger.Warn("recursive settings update skipped")
		return false
	}
	s.isUpdating = true
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	s.current = core.DefaultSettings()
	snapshot := s.current
	s.isUpdating = false
	s.mu.Unlock()

	if err := s.persistNow(ctx, snapshot); err != nil {
		s.reportError(err)
		return false
	}
	s.notify(snapshot)
	if s.dispatcher != nil {
		s.dispatcher.Post(bus.NewEvent(bus.EventSettingsReset, ""))
	}
	s.logger.Info("settings reset to defaults")
	return true
}

// FormatAmount renders a monetary value per the active currency and
// number format.
func (s *Store) FormatAmount(m core.Money) string {
	return s.Current().FormatAmount(m)
}

// FormattedCurrency renders the active currency for display, e.g.
// "US Dollar (USD)".
func (s *Store) FormattedCurrency() string {
	c := s.Current().Currency
	return fmt.Sprintf("%s (%s)", c.DisplayName(), c.Code())
}

// FormattedBudget renders the budget limits for display, "off" when
// budgets are disabled.
func (s *Store) FormattedBudget() string {
	cur := s.Current()
	if !cur.Budget.Enabled {
		return "off"
	}
	parts := make([]string, 0, 2)
	if cur.Budget.DailyCents != nil {
		parts = append(parts, "daily "+cur.FormatAmount(core.Money{Cents: *cur.Budget.DailyCents}))
	}
	if cur.Budget.MonthlyCents != nil {
		parts = append(parts, "monthly "+cur.FormatAmount(core.Money{Cents: *cur.Budget.MonthlyCents}))
	}
	if len(parts) == 0 {
		return "enabled, no limits set"
	}
	return strings.Join(parts, ", ")
}

// validBudgetCap accepts an unset cap or a positive one within bounds.
func validBudgetCap(cents *int64) bool {
	return cents == nil || (*cents > 0 && *cents <= core.MaxAmountCents)
}

// apply runs a mutator under the re-entrancy guard. It returns false
// when the guard is held or the mutator reports no change. On change it
// notifies subscribers and dispatches the event after its delay; a
// debounced persist is scheduled only when a key field changed.
func (s *Store) apply(mutate func(*core.AppSettings) bool, event bus.Event, delay time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.isUpdating {
		s.mu.Unlock()
		s.logger.Warn("recursive settings update skipped")
		return false
	}
	s.isUpdating = true
	next := s.current
	changed := mutate(&next)
	if !changed {
		s.isUpdating = false
		s.mu.Unlock()
		return false
	}
	// Key-field changes stamp LastModified and schedule a write.
	// Non-key changes (avatar bytes, sub-toggles) update the in-memory
	// settings only; they ride along with the next scheduled write.
	if !s.current.KeyFieldsEqual(next) {
		next.LastModified = time.Now()
		s.current = next
		s.schedulePersistLocked()
	} else {
		s.current = next
	}
	s.isUpdating = false
	s.mu.Unlock()

	s.notify(next)
	if event.Name != "" && s.dispatcher != nil {
		s.dispatcher.PostAfter(delay, event)
	}
	return true
}

func (s *Store) schedulePersistLocked() {
	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	s.persistTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		snapshot := s.current
		s.persistTimer = nil
		s.mu.Unlock()
		if err := s.persistNow(context.Background(), snapshot); err != nil {
			s.reportError(err)
		}
	})
}

func (s *Store) persistNow(ctx context.Context, settings core.AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Set(ctx, settingsKey, data); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// Flush writes any pending debounced change immediately. Used during
// shutdown so the last change survives the process exit.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.persistTimer == nil {
		s.mu.Unlock()
		return nil
	}
	s.persistTimer.Stop()
	s.persistTimer = nil
	snapshot := s.current
	s.mu.Unlock()
	return s.persistNow(ctx, snapshot)
}

// Close flushes pending writes and stops notifying subscribers.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.subs = nil
	s.mu.Unlock()
	return err
}

func (s *Store) notify(snapshot core.AppSettings) {
	s.mu.Lock()
	subs := make([]chan core.AppSettings, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *Store) reportError(err error) {
	s.logger.Error("settings error", log.FieldError, err)
	select {
	case s.errors <- err:
	default:
		select {
		case <-s.errors:
		default:
		}
		select {
		case s.errors <- err:
		default:
		}
	}
}
