package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Currency is one of the fixed supported currencies.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	CNY Currency = "CNY"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	CHF Currency = "CHF"
)

// Currencies lists every supported currency in display order.
func Currencies() []Currency {
	return []Currency{USD, EUR, GBP, JPY, CNY, CAD, AUD, CHF}
}

// Symbol returns the display symbol for the currency.
func (c Currency) Symbol() string {
	switch c {
	case USD, CAD, AUD:
		return "$"
	case EUR:
		return "€"
	case GBP:
		return "£"
	case JPY, CNY:
		return "¥"
	case CHF:
		return "₣"
	default:
		return "$"
	}
}

// DisplayName returns the human-readable currency name.
func (c Currency) DisplayName() string {
	switch c {
	case USD:
		return "US Dollar"
	case EUR:
		return "Euro"
	case GBP:
		return "British Pound"
	case JPY:
		return "Japanese Yen"
	case CNY:
		return "Chinese Yuan"
	case CAD:
		return "Canadian Dollar"
	case AUD:
		return "Australian Dollar"
	case CHF:
		return "Swiss Franc"
	default:
		return string(c)
	}
}

// Code returns the ISO 4217 code.
func (c Currency) Code() string { return string(c) }

// Valid reports whether the currency is one of the supported set.
func (c Currency) Valid() bool {
	switch c {
	case USD, EUR, GBP, JPY, CNY, CAD, AUD, CHF:
		return true
	}
	return false
}

// NumberFormat selects how amounts are rendered. Each variant is a pure
// formatting function of (amount, currency).
type NumberFormat string

const (
	FormatDecimal NumberFormat = "decimal" // $1,234.56
	FormatSpaced  NumberFormat = "spaced"  // 1 234,56 $
	FormatCompact NumberFormat = "compact" // $1.2K
)

// Valid reports whether the format is a known variant.
func (f NumberFormat) Valid() bool {
	switch f {
	case FormatDecimal, FormatSpaced, FormatCompact:
		return true
	}
	return false
}

// Format renders an amount according to the variant.
func (f NumberFormat) Format(m Money, c Currency) string {
	switch f {
	case FormatSpaced:
		return groupDigits(m, " ", ",") + " " + c.Symbol()
	case FormatCompact:
		units := m.Units()
		if units >= 1000 {
			return fmt.Sprintf("%s%.1fK", c.Symbol(), units/1000)
		}
		return fmt.Sprintf("%s%.0f", c.Symbol(), units)
	default: // FormatDecimal
		return c.Symbol() + groupDigits(m, ",", ".")
	}
}

// groupDigits renders cents as a grouped decimal, e.g. 123456 -> "1,234.56".
func groupDigits(m Money, groupSep, decimalSep string) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(groupSep)
		}
		b.WriteString(digits[i : i+3])
	}
	out := fmt.Sprintf("%s%s%02d", b.String(), decimalSep, frac)
	if neg {
		return "-" + out
	}
	return out
}

// WeekStart is the first day of the calendar week.
type WeekStart string

const (
	WeekStartMonday WeekStart = "monday"
	WeekStartSunday WeekStart = "sunday"
)

// Weekday returns the time.Weekday the week starts on.
func (w WeekStart) Weekday() time.Weekday {
	if w == WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// AppTheme selects the UI color scheme.
type AppTheme string

const (
	ThemeSystem AppTheme = "system"
	ThemeLight  AppTheme = "light"
	ThemeDark   AppTheme = "dark"
)

// Valid reports whether the theme is a known variant.
func (t AppTheme) Valid() bool {
	return t == ThemeSystem || t == ThemeLight || t == ThemeDark
}

// AppLanguage is the UI language. Only English is functional; the rest are
// enumerated for the selection screen.
type AppLanguage string

const (
	LangEnglish    AppLanguage = "en"
	LangSpanish    AppLanguage = "es"
	LangFrench     AppLanguage = "fr"
	LangGerman     AppLanguage = "de"
	LangItalian    AppLanguage = "it"
	LangPortuguese AppLanguage = "pt"
	LangJapanese   AppLanguage = "ja"
	LangKorean     AppLanguage = "ko"
	LangChinese    AppLanguage = "zh"
)

type (
	// UserProfile is the user-facing identity block inside AppSettings.
	UserProfile struct {
		Name        string    `json:"name"`
		Email       *string   `json:"email,omitempty"`
		AvatarImage []byte    `json:"avatarImage,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// BudgetSettings holds optional daily/monthly caps in cents.
	BudgetSettings struct {
		DailyCents   *int64 `json:"dailyCents,omitempty"`
		MonthlyCents *int64 `json:"monthlyCents,omitempty"`
		Enabled      bool   `json:"enabled"`
	}

	// NotificationSettings drives the reminder subsystem.
	NotificationSettings struct {
		Enabled       bool      `json:"enabled"`
		DailyReminder bool      `json:"dailyReminder"`
		BudgetAlerts  bool      `json:"budgetAlerts"`
		WeeklyReports bool      `json:"weeklyReports"`
		ReminderTime  time.Time `json:"reminderTime"`
	}

	// PrivacySettings holds the privacy toggles.
	PrivacySettings struct {
		RequireAuth             bool `json:"requireAuth"`
		HideAmountsInBackground bool `json:"hideAmountsInBackground"`
		LocalStorageOnly        bool `json:"localStorageOnly"`
	}

	// AppSettings is the single composite settings value. It has value
	// semantics: mutators re-assign the whole thing.
	AppSettings struct {
		UserProfile   UserProfile          `json:"userProfile"`
		Currency      Currency             `json:"currency"`
		NumberFormat  NumberFormat         `json:"numberFormat"`
		WeekStart     WeekStart            `json:"weekStart"`
		Budget        BudgetSettings       `json:"budgetSettings"`
		Theme         AppTheme             `json:"theme"`
		Language      AppLanguage          `json:"language"`
		Notifications NotificationSettings `json:"notificationSettings"`
		Privacy       PrivacySettings      `json:"privacySettings"`
		AppVersion    string               `json:"appVersion"`
		CreatedAt     time.Time            `json:"createdAt"`
		LastModified  time.Time            `json:"lastModified"`
	}
)

// AppVersion is stamped into fresh settings.
const AppVersion = "1.0"

// DefaultSettings builds the first-launch settings value.
func DefaultSettings() AppSettings {
	now := time.Now()
	return AppSettings{
		UserProfile:  UserProfile{Name: "User", CreatedAt: now},
		Currency:     USD,
		NumberFormat: FormatDecimal,
		WeekStart:    WeekStartMonday,
		Theme:        ThemeSystem,
		Language:     LangEnglish,
		Notifications: NotificationSettings{
			ReminderTime: time.Date(now.Year(), now.Month(), now.Day(), 20, 0, 0, 0, now.Location()),
		},
		Privacy: PrivacySettings{
			HideAmountsInBackground: true,
			LocalStorageOnly:        true,
		},
		AppVersion:   AppVersion,
		CreatedAt:    now,
		LastModified: now,
	}
}

// KeyFieldsEqual compares the subset of fields whose change is worth a
// persistence write. Touching anything outside this set (timestamps, avatar
// bytes, sub-toggles) must not trigger redundant saves.
func (s AppSettings) KeyFieldsEqual(other AppSettings) bool {
	return s.Currency == other.Currency &&
		s.Theme == other.Theme &&
		s.Language == other.Language &&
		s.NumberFormat == other.NumberFormat &&
		s.WeekStart == other.WeekStart &&
		s.UserProfile.Name == other.UserProfile.Name &&
		strPtrEqual(s.UserProfile.Email, other.UserProfile.Email) &&
		s.Budget.Enabled == other.Budget.Enabled &&
		s.Notifications.Enabled == other.Notifications.Enabled
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FormatAmount renders an amount using the settings' currency and format.
func (s AppSettings) FormatAmount(m Money) string {
	return s.NumberFormat.Format(m, s.Currency)
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidBudgetAmount reports whether s parses to a usable budget cap
// (positive, at most one million units).
func ValidBudgetAmount(s string) bool {
	m, err := ParseAmount(s)
	return err == nil && m.Cents <= MaxAmountCents
}
