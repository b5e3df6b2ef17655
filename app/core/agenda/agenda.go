// Package agenda plans the recurring informational notifications: the daily
// summary at the configured time and per-person birthday reminders with
// priority-dependent lead days.
package agenda

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"buddy/app/core/notify"
	"buddy/app/core/store"
	"buddy/app/pkg/logger"
	"buddy/app/pkg/types"
)

var slog = logger.Scope("agenda")

// DailyNotificationID is the stable id of the daily summary notification.
// Rescheduling under it supersedes the previous day's row.
const DailyNotificationID = "daily-summary"

func BirthdayNotificationID(personID string) string {
	return "birthday-" + personID
}

// SummarySource produces the daily summary body. The chat service satisfies
// it; a static fallback lives behind that call already.
type SummarySource interface {
	GenerateDailySummary(ctx context.Context) (string, error)
}

type Planner struct {
	people    *store.PeopleStore
	config    *store.NotificationConfigStore
	summaries SummarySource
	notifier  notify.Scheduler

	// now is swappable for tests.
	now func() time.Time
}

func NewPlanner(people *store.PeopleStore, config *store.NotificationConfigStore, summaries SummarySource, notifier notify.Scheduler) *Planner {
	return &Planner{
		people:    people,
		config:    config,
		summaries: summaries,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Plan reconciles the scheduled daily and birthday notifications against the
// current config and people list. Safe to run repeatedly; stable ids make
// each pass supersede the last.
func (p *Planner) Plan(ctx context.Context) error {
	cfg, err := p.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("load notification config: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.planDaily(ctx, cfg) })
	g.Go(func() error { return p.planBirthdays(ctx, cfg) })
	return g.Wait()
}

func (p *Planner) planDaily(ctx context.Context, cfg store.NotificationConfig) error {
	if !cfg.DailyNotifEnabled {
		return p.notifier.Cancel(ctx, DailyNotificationID)
	}

	at := nextDailyTrigger(cfg.DailyNotifTime, p.now())
	body, err := p.summaries.GenerateDailySummary(ctx)
	if err != nil {
		return fmt.Errorf("daily summary body: %w", err)
	}
	payload, _ := sjson.Set("", "kind", "daily")
	return p.notifier.ScheduleAt(ctx, DailyNotificationID, at, "Your day's summary", body, payload)
}

func (p *Planner) planBirthdays(ctx context.Context, cfg store.NotificationConfig) error {
	if !cfg.BirthdayNotifEnabled {
		return nil
	}
	people, err := p.people.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("list people: %w", err)
	}

	now := p.now()
	for _, person := range people {
		if person.Birthday == "" {
			continue
		}
		parsed, err := time.ParseInLocation("2006-01-02", person.Birthday, now.Location())
		if err != nil {
			slog.Error("Skipping birthday for %s: %v", person.ID, err)
			continue
		}
		lead := leadDays(person.Priority, cfg)
		remindOn := nextBirthdayReminder(parsed.Month(), parsed.Day(), lead, now)

		payload, _ := sjson.Set("", "kind", "birthday")
		payload, _ = sjson.Set(payload, "personId", person.ID)
		body := fmt.Sprintf("%s's birthday is coming up!", person.Name)
		if err := p.notifier.ScheduleAt(ctx, BirthdayNotificationID(person.ID), remindOn,
			"Birthday reminder", body, payload); err != nil {
			return fmt.Errorf("schedule birthday for %s: %w", person.ID, err)
		}
	}
	return nil
}

func leadDays(p types.Priority, cfg store.NotificationConfig) int {
	switch p {
	case types.PriorityHigh:
		return cfg.HighPriorityDays
	case types.PriorityMedium:
		return cfg.MediumPriorityDays
	default:
		return cfg.LowPriorityDays
	}
}

// nextDailyTrigger is today at timeHHMM, rolled to tomorrow once the moment
// has passed. A malformed time falls back to 09:00.
func nextDailyTrigger(timeHHMM string, now time.Time) time.Time {
	parsed, err := time.Parse("15:04", timeHHMM)
	if err != nil {
		parsed, _ = time.Parse("15:04", "09:00")
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// nextBirthdayReminder is the upcoming birthday (this year or next) minus
// lead days, at local midnight. A lead window that has already passed this
// year rolls to next year's birthday.
func nextBirthdayReminder(month time.Month, day, lead int, now time.Time) time.Time {
	remindOn := time.Date(now.Year(), month, day-lead, 0, 0, 0, 0, now.Location())
	if remindOn.Before(now) {
		remindOn = time.Date(now.Year()+1, month, day-lead, 0, 0, 0, 0, now.Location())
	}
	return remindOn
}
