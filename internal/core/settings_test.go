package core

import (
	"testing"
)

func TestNumberFormatFormat(t *testing.T) {
	cases := []struct {
		format NumberFormat
		money  Money
		cur    Currency
		want   string
	}{
		{FormatDecimal, Money{Cents: 123456}, USD, "$1,234.56"},
		{FormatDecimal, Money{Cents: 50}, USD, "$0.50"},
		{FormatDecimal, Money{Cents: 100000000}, EUR, "€1,000,000.00"},
		{FormatSpaced, Money{Cents: 123456}, EUR, "1 234,56 €"},
		{FormatCompact, Money{Cents: 123456}, USD, "$1.2K"},
		{FormatCompact, Money{Cents: 5000}, USD, "$50"},
		{FormatCompact, Money{Cents: 99999}, GBP, "£1000"},
	}
	for _, tc := range cases {
		got := tc.format.Format(tc.money, tc.cur)
		if got != tc.want {
			t.Errorf("%s.Format(%d, %s) = %q, want %q", tc.format, tc.money.Cents, tc.cur, got, tc.want)
		}
	}
}

func TestKeyFieldsEqual(t *testing.T) {
	a := DefaultSettings()
	b := a

	if !a.KeyFieldsEqual(b) {
		t.Fatal("identical settings must be key-equal")
	}

	// Touching a non-key field keeps equality.
	b.Notifications.DailyReminder = true
	b.Privacy.RequireAuth = true
	b.LastModified = b.LastModified.Add(1)
	if !a.KeyFieldsEqual(b) {
		t.Fatal("non-key field changes must not break key equality")
	}

	// Each key field breaks it.
	mutations := []func(*AppSettings){
		func(s *AppSettings) { s.Currency = EUR },
		func(s *AppSettings) { s.Theme = ThemeDark },
		func(s *AppSettings) { s.Language = LangGerman },
		func(s *AppSettings) { s.NumberFormat = FormatCompact },
		func(s *AppSettings) { s.WeekStart = WeekStartSunday },
		func(s *AppSettings) { s.UserProfile.Name = "Alice" },
		func(s *AppSettings) { e := "a@b.co"; s.UserProfile.Email = &e },
		func(s *AppSettings) { s.Budget.Enabled = true },
		func(s *AppSettings) { s.Notifications.Enabled = true },
	}
	for i, mutate := range mutations {
		c := a
		mutate(&c)
		if a.KeyFieldsEqual(c) {
			t.Errorf("mutation %d should break key equality", i)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "user.name+tag@example.com"}
	invalid := []string{"", "plain", "a@b", "@example.com", "a b@c.de"}
	for _, e := range valid {
		if !ValidEmail(e) {
			t.Errorf("%q should be valid", e)
		}
	}
	for _, e := range invalid {
		if ValidEmail(e) {
			t.Errorf("%q should be invalid", e)
		}
	}
}

func TestValidBudgetAmount(t *testing.T) {
	if !ValidBudgetAmount("100") || !ValidBudgetAmount("999999.99") {
		t.Fatal("expected valid budget amounts")
	}
	for _, s := range []string{"0", "-5", "abc", "1000000.01"} {
		if ValidBudgetAmount(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Currency != USD || s.NumberFormat != FormatDecimal || s.WeekStart != WeekStartMonday {
		t.Fatalf("unexpected financial defaults: %+v", s)
	}
	if s.Theme != ThemeSystem || s.Language != LangEnglish {
		t.Fatalf("unexpected preference defaults: %+v", s)
	}
	if s.Notifications.Enabled || s.Budget.Enabled {
		t.Fatal("notifications and budget must default off")
	}
	if !s.Privacy.HideAmountsInBackground || !s.Privacy.LocalStorageOnly {
		t.Fatal("privacy must default to local-only with hidden amounts")
	}
	if h, m, _ := s.Notifications.ReminderTime.Clock(); h != 20 || m != 0 {
		t.Fatalf("reminder time should default to 20:00, got %02d:%02d", h, m)
	}
}
