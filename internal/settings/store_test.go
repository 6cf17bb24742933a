package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"spendlog/internal/bus"
	"spendlog/internal/core"
	"spendlog/internal/kv"
	"spendlog/internal/log"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Component: log.ComponentSettings})
}

// countingStore wraps a kv.Store and counts Set calls.
type countingStore struct {
	kv.Store
	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func (c *countingStore) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// failingStore rejects all writes.
type failingStore struct{ kv.Store }

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T, mem kv.Store, debounce time.Duration) *Store {
	t.Helper()
	s := NewStore(context.Background(), mem, bus.NewDispatcher(nil, testLogger()), testLogger(), debounce)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestFirstRunPersistsDefaults(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem, time.Hour)

	if got := s.Current(); got.Currency != core.USD {
		t.Fatalf("default currency = %q", got.Currency)
	}
	data, ok, err := mem.Get(context.Background(), "AppSettings_v2")
	if err != nil || !ok {
		t.Fatalf("defaults were not persisted: ok=%v err=%v", ok, err)
	}
	var persisted core.AppSettings
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("persisted defaults are not valid JSON: %v", err)
	}
}

func TestLegacyKeyMigration(t *testing.T) {
	mem := kv.NewMemory()
	ctx := context.Background()

	legacy := core.DefaultSettings()
	legacy.Currency = core.EUR
	legacy.Theme = core.ThemeDark
	data, _ := json.Marshal(legacy)
	if err := mem.Set(ctx, "AppSettings", data); err != nil {
		t.Fatal(err)
	}

	s := newTestStore(t, mem, time.Hour)

	got := s.Current()
	if got.Currency != core.EUR || got.Theme != core.ThemeDark {
		t.Fatalf("migrated settings lost values: %+v", got)
	}
	if _, ok, _ := mem.Get(ctx, "AppSettings"); ok {
		t.Fatal("legacy key should be removed after migration")
	}
	if _, ok, _ := mem.Get(ctx, "AppSettings_v2"); !ok {
		t.Fatal("settings should be re-saved under the current key")
	}
}

func TestDebouncedPersistCoalescesBurst(t *testing.T) {
	counting := &countingStore{Store: kv.NewMemory()}
	s := newTestStore(t, counting, 30*time.Millisecond)
	base := counting.setCount() // initial defaults write

	s.SetCurrency(core.EUR)
	s.SetTheme(core.ThemeDark)
	s.SetCurrency(core.GBP)

	time.Sleep(80 * time.Millisecond)
	if got := counting.setCount() - base; got != 1 {
		t.Fatalf("burst produced %d writes, want 1", got)
	}

	data, _, _ := counting.Get(context.Background(), "AppSettings_v2")
	var persisted core.AppSettings
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatal(err)
	}
	if persisted.Currency != core.GBP || persisted.Theme != core.ThemeDark {
		t.Fatalf("persisted state missing late changes: %+v", persisted)
	}
}

func TestUnchangedValueIsNoOp(t *testing.T) {
	counting := &countingStore{Store: kv.NewMemory()}
	s := newTestStore(t, counting, 10*time.Millisecond)
	base := counting.setCount()

	if s.SetCurrency(core.USD) {
		t.Fatal("setting the already-active currency should report no change")
	}
	if s.SetTheme(core.ThemeSystem) {
		t.Fatal("setting the already-active theme should report no change")
	}

	time.Sleep(40 * time.Millisecond)
	if got := counting.setCount() - base; got != 0 {
		t.Fatalf("no-op mutations produced %d writes", got)
	}
}

func TestInvalidInputRejected(t *testing.T) {
	s := newTestStore(t, kv.NewMemory(), time.Hour)

	if s.SetCurrency(core.Currency("XYZ")) {
		t.Fatal("unknown currency accepted")
	}
	bad := "not-an-email"
	if s.UpdateProfile("Ana", &bad) {
		t.Fatal("malformed email accepted")
	}
	neg := int64(-5)
	if s.SetBudget(core.BudgetSettings{MonthlyCents: &neg, Enabled: true}) {
		t.Fatal("negative budget accepted")
	}

	select {
	case <-s.Errors():
	default:
		t.Fatal("rejections should surface on the error channel")
	}
}

func TestSubscribeSeesLatestSnapshot(t *testing.T) {
	s := newTestStore(t, kv.NewMemory(), time.Hour)
	ch := s.Subscribe()

	s.SetCurrency(core.EUR)
	s.SetCurrency(core.JPY)

	snap := <-ch
	if snap.Currency != core.JPY {
		t.Fatalf("subscriber saw stale currency %q", snap.Currency)
	}
}

func TestNonKeyChangeBroadcastsWithoutWrite(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem, 10*time.Millisecond)
	ch := s.Subscribe()

	if !s.SetAvatar([]byte{0x89, 0x50}) {
		t.Fatal("avatar update rejected")
	}

	select {
	case snap := <-ch:
		if len(snap.UserProfile.AvatarImage) != 2 {
			t.Fatalf("subscriber saw a stale profile: %+v", snap.UserProfile)
		}
	case <-time.After(time.Second):
		t.Fatal("avatar change was not broadcast")
	}

	// No key field changed, so no write gets scheduled.
	time.Sleep(40 * time.Millisecond)
	data, _, _ := mem.Get(context.Background(), "AppSettings_v2")
	var persisted core.AppSettings
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatal(err)
	}
	if len(persisted.UserProfile.AvatarImage) != 0 {
		t.Fatal("avatar-only change scheduled its own write")
	}

	// The avatar rides along with the next key-field write.
	s.SetCurrency(core.EUR)
	time.Sleep(40 * time.Millisecond)
	data, _, _ = mem.Get(context.Background(), "AppSettings_v2")
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatal(err)
	}
	if len(persisted.UserProfile.AvatarImage) != 2 {
		t.Fatal("avatar missing from the key-field write")
	}
}

func TestChangeEventsAreDelayed(t *testing.T) {
	d := bus.NewDispatcher(nil, testLogger())
	defer d.Close()
	s := NewStore(context.Background(), kv.NewMemory(), d, testLogger(), time.Hour)
	defer s.Close(context.Background())
	events := d.Subscribe()

	s.SetLanguage(core.LangFrench)

	select {
	case e := <-events:
		t.Fatalf("event arrived immediately: %+v", e)
	default:
	}
	select {
	case e := <-events:
		if e.Name != bus.EventLanguageChanged || e.Value != string(core.LangFrench) {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("language change event never arrived")
	}
}

func TestFlushWritesPendingChange(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem, time.Hour)

	s.SetTheme(core.ThemeLight)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, _, _ := mem.Get(context.Background(), "AppSettings_v2")
	var persisted core.AppSettings
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatal(err)
	}
	if persisted.Theme != core.ThemeLight {
		t.Fatalf("pending change not flushed: theme=%q", persisted.Theme)
	}
}

func TestResetRestoresDefaultsImmediately(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem, time.Hour)

	s.SetCurrency(core.EUR)
	s.SetTheme(core.ThemeDark)
	if !s.ResetAllSettings(context.Background()) {
		t.Fatal("reset failed")
	}

	if got := s.Current(); got.Currency != core.USD || got.Theme != core.ThemeSystem {
		t.Fatalf("reset left %+v", got)
	}
	data, _, _ := mem.Get(context.Background(), "AppSettings_v2")
	var persisted core.AppSettings
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatal(err)
	}
	if persisted.Currency != core.USD {
		t.Fatal("reset was not persisted immediately")
	}
}

func TestPersistFailureSurfacesOnErrors(t *testing.T) {
	s := NewStore(context.Background(), failingStore{kv.NewMemory()}, bus.NewDispatcher(nil, testLogger()), testLogger(), 10*time.Millisecond)
	defer s.Close(context.Background())

	// Drain the startup write failure, then trigger a fresh one.
	select {
	case <-s.Errors():
	default:
	}
	s.SetTheme(core.ThemeDark)

	select {
	case err := <-s.Errors():
		if err == nil {
			t.Fatal("nil error on channel")
		}
	case <-time.After(time.Second):
		t.Fatal("persist failure never surfaced")
	}
}

func TestFormattedDisplayStrings(t *testing.T) {
	mem := kv.NewMemory()
	s := newTestStore(t, mem, time.Hour)

	if got := s.FormattedCurrency(); got != "US Dollar (USD)" {
		t.Fatalf("FormattedCurrency() = %q", got)
	}
	if got := s.FormattedBudget(); got != "off" {
		t.Fatalf("budget disabled, FormattedBudget() = %q", got)
	}

	monthly := int64(50000)
	if !s.SetBudget(core.BudgetSettings{MonthlyCents: &monthly, Enabled: true}) {
		t.Fatal("SetBudget rejected a valid limit")
	}
	if got := s.FormattedBudget(); got != "monthly $500.00" {
		t.Fatalf("FormattedBudget() = %q", got)
	}
}
