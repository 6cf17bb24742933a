// Package notify turns notification preferences into scheduled
// reminders. It has no delivery mechanism of its own; a Sink decides
// what a reminder looks like.
package notify

import (
	"context"
	"fmt"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/log"
)

// Kind labels the reminder being delivered.
type Kind string

const (
	KindDailyReminder Kind = "daily_reminder"
	KindWeeklyReport  Kind = "weekly_report"
	KindBudgetAlert   Kind = "budget_alert"
)

// Sink receives reminders due for delivery.
type Sink interface {
	Notify(ctx context.Context, kind Kind, message string) error
}

// LogSink writes reminders to the log. The default delivery for a
// headless deployment.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Notify(_ context.Context, kind Kind, message string) error {
	s.Logger.Info("reminder", "kind", string(kind), "message", message)
	return nil
}

// Scheduler polls the notification settings and fires reminders at
// their configured times. Settings are read fresh every tick, so
// preference changes take effect without a restart.
type Scheduler struct {
	settings func() core.AppSettings
	sink     Sink
	logger   *log.Logger
	interval time.Duration
	errs     chan error

	lastDaily  time.Time
	lastWeekly time.Time
}

func NewScheduler(settings func() core.AppSettings, sink Sink, logger *log.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		sink:     sink,
		logger:   logger.WithComponent(log.ComponentNotify),
		interval: time.Minute,
		errs:     make(chan error, 1),
	}
}

// Errors exposes delivery failures. The channel holds the latest
// failure only; an unread one is replaced by the next.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

func (s *Scheduler) fail(err error) {
	select {
	case s.errs <- err:
	default:
		select {
		case <-s.errs:
		default:
		}
		select {
		case s.errs <- err:
		default:
		}
	}
}

// Run blocks until ctx is cancelled, checking for due reminders once
// per tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	prefs := s.settings()
	n := prefs.Notifications
	if !n.Enabled {
		return
	}

	// Delivery timestamps advance only on success, so a failed
	// reminder is retried on the next tick.
	if n.DailyReminder && s.dailyDue(n.ReminderTime, now) {
		if err := s.sink.Notify(ctx, KindDailyReminder, "Don't forget to log today's expenses"); err != nil {
			s.logger.Error("deliver daily reminder", log.FieldError, err)
			s.fail(fmt.Errorf("deliver daily reminder: %w", err))
		} else {
			s.lastDaily = now
		}
	}

	if n.WeeklyReports && s.weeklyDue(prefs.WeekStart, n.ReminderTime, now) {
		if err := s.sink.Notify(ctx, KindWeeklyReport, "Your weekly spending summary is ready"); err != nil {
			s.logger.Error("deliver weekly report", log.FieldError, err)
			s.fail(fmt.Errorf("deliver weekly report: %w", err))
		} else {
			s.lastWeekly = now
		}
	}
}

// dailyDue reports whether the reminder's time of day has passed today
// and nothing fired yet.
func (s *Scheduler) dailyDue(reminderAt, now time.Time) bool {
	if core.SameDay(s.lastDaily, now) {
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), reminderAt.Hour(), reminderAt.Minute(), 0, 0, now.Location())
	return !now.Before(due)
}

// weeklyDue fires on the first day of the configured week, at the
// reminder time.
func (s *Scheduler) weeklyDue(weekStart core.WeekStart, reminderAt, now time.Time) bool {
	if now.Weekday() != weekStart.Weekday() {
		return false
	}
	if core.SameDay(s.lastWeekly, now) {
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), reminderAt.Hour(), reminderAt.Minute(), 0, 0, now.Location())
	return !now.Before(due)
}

// BudgetAlert delivers an over-budget warning when alerts are enabled.
// The fraction is monthly spending over the limit.
func (s *Scheduler) BudgetAlert(ctx context.Context, fraction float64) {
	prefs := s.settings()
	if !prefs.Notifications.Enabled || !prefs.Notifications.BudgetAlerts {
		return
	}
	msg := fmt.Sprintf("You have used %.0f%% of your monthly budget", fraction*100)
	if err := s.sink.Notify(ctx, KindBudgetAlert, msg); err != nil {
		s.logger.Error("deliver budget alert", log.FieldError, err)
		s.fail(fmt.Errorf("deliver budget alert: %w", err))
	}
}
