// Package missed implements the overdue sweep. Each run promotes newly
// overdue items into the missed state, advances the escalation ladder for
// items whose last reminder expired, and schedules the follow-up
// notification. Runs are idempotent: an item is only touched when its
// next_remind_at gate has passed.
package missed

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"buddy/app/core/items"
	"buddy/app/core/notify"
	"buddy/app/core/store"
	"buddy/app/pkg/logger"
	"buddy/app/pkg/types"
)

var slog = logger.Scope("sweep")

type Detector struct {
	tasks     *store.TaskStore
	todos     *store.TodoStore
	reminders *store.ReminderStore
	config    *store.NotificationConfigStore
	notifier  notify.Scheduler

	// now is swappable for tests.
	now func() time.Time
}

func NewDetector(tasks *store.TaskStore, todos *store.TodoStore, reminders *store.ReminderStore, config *store.NotificationConfigStore, notifier notify.Scheduler) *Detector {
	return &Detector{
		tasks:     tasks,
		todos:     todos,
		reminders: reminders,
		config:    config,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Sweep runs one detection pass. The three kinds are scanned concurrently;
// a failure on one candidate is logged and never blocks the rest.
func (d *Detector) Sweep(ctx context.Context) error {
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("load notification config: %w", err)
	}
	if !cfg.MissedNotifEnabled {
		return nil
	}

	now := d.now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.sweepTasks(gctx, cfg, now) })
	g.Go(func() error { return d.sweepTodos(gctx, cfg, now) })
	g.Go(func() error { return d.sweepReminders(gctx, cfg, now) })
	return g.Wait()
}

func (d *Detector) sweepTasks(ctx context.Context, cfg store.NotificationConfig, now time.Time) error {
	tasks, err := d.tasks.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("scan tasks: %w", err)
	}
	cutoff := startOfDay(now)

	var g errgroup.Group
	for _, task := range tasks {
		task := task
		if task.Status == types.StatusDone || task.Status == types.StatusDismissed || task.Missed.IsDismissed {
			continue
		}
		if task.DueDate.IsZero() || !task.DueDate.Before(cutoff) {
			continue
		}
		if !escalationDue(task.Missed, now) {
			continue
		}
		g.Go(func() error {
			if err := d.escalateTask(ctx, cfg, task, now); err != nil {
				slog.Error("Escalate task %s: %v", task.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Detector) sweepTodos(ctx context.Context, cfg store.NotificationConfig, now time.Time) error {
	todos, err := d.todos.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("scan todos: %w", err)
	}
	cutoff := startOfDay(now)

	var g errgroup.Group
	for _, todo := range todos {
		todo := todo
		if todo.IsCompleted || todo.Missed.IsDismissed {
			continue
		}
		if todo.DueDate.IsZero() || !todo.DueDate.Before(cutoff) {
			continue
		}
		if !escalationDue(todo.Missed, now) {
			continue
		}
		g.Go(func() error {
			if err := d.escalateTodo(ctx, cfg, todo, now); err != nil {
				slog.Error("Escalate todo %s: %v", todo.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reminders carry a precise time, so they compare against now rather than
// the start of today.
func (d *Detector) sweepReminders(ctx context.Context, cfg store.NotificationConfig, now time.Time) error {
	reminders, err := d.reminders.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("scan reminders: %w", err)
	}

	var g errgroup.Group
	for _, r := range reminders {
		r := r
		if r.IsDone || r.Missed.IsDismissed {
			continue
		}
		if !r.RemindAt.Before(now) {
			continue
		}
		if !escalationDue(r.Missed, now) {
			continue
		}
		g.Go(func() error {
			if err := d.escalateReminder(ctx, cfg, r, now); err != nil {
				slog.Error("Escalate reminder %s: %v", r.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// escalationDue reports whether the item has never been escalated or its
// previous escalation window has expired.
func escalationDue(m store.MissedState, now time.Time) bool {
	return m.NextRemindAt.IsZero() || !m.NextRemindAt.After(now)
}

func (d *Detector) escalateTask(ctx context.Context, cfg store.NotificationConfig, task store.Task, now time.Time) error {
	next := nextStep(cfg, task.Priority, task.Missed, now)
	status := types.StatusMissed
	if _, err := d.tasks.Update(ctx, task.ID, store.UpdateTask{
		Status:       &status,
		IsMissed:     &next.isMissed,
		MissedAt:     &next.missedAt,
		NextRemindAt: &next.nextRemindAt,
		RemindCount:  &next.remindCount,
	}); err != nil {
		return err
	}
	return d.schedule(ctx, types.KindTask, task.ID, task.Title, task.Priority, next)
}

func (d *Detector) escalateTodo(ctx context.Context, cfg store.NotificationConfig, todo store.Todo, now time.Time) error {
	next := nextStep(cfg, todo.Priority, todo.Missed, now)
	if _, err := d.todos.Update(ctx, todo.ID, store.UpdateTodo{
		IsMissed:     &next.isMissed,
		MissedAt:     &next.missedAt,
		NextRemindAt: &next.nextRemindAt,
		RemindCount:  &next.remindCount,
	}); err != nil {
		return err
	}
	return d.schedule(ctx, types.KindTodo, todo.ID, todo.Title, todo.Priority, next)
}

func (d *Detector) escalateReminder(ctx context.Context, cfg store.NotificationConfig, r store.Reminder, now time.Time) error {
	next := nextStep(cfg, r.Priority, r.Missed, now)
	if _, err := d.reminders.Update(ctx, r.ID, store.UpdateReminder{
		IsMissed:     &next.isMissed,
		MissedAt:     &next.missedAt,
		NextRemindAt: &next.nextRemindAt,
		RemindCount:  &next.remindCount,
	}); err != nil {
		return err
	}
	return d.schedule(ctx, types.KindReminder, r.ID, r.Title, r.Priority, next)
}

type escalationStep struct {
	isMissed     bool
	missedAt     time.Time
	nextRemindAt time.Time
	remindCount  int
}

func nextStep(cfg store.NotificationConfig, p types.Priority, m store.MissedState, now time.Time) escalationStep {
	missedAt := m.MissedAt
	if missedAt.IsZero() {
		missedAt = now
	}
	days := cfg.MissedInterval(p)
	if days <= 0 {
		days = 1
	}
	return escalationStep{
		isMissed:     true,
		missedAt:     missedAt,
		nextRemindAt: now.Add(time.Duration(days) * 24 * time.Hour),
		remindCount:  m.RemindCount + 1,
	}
}

func (d *Detector) schedule(ctx context.Context, kind types.ItemKind, id, title string, p types.Priority, step escalationStep) error {
	payload, _ := sjson.Set("", "kind", string(kind))
	payload, _ = sjson.Set(payload, "id", id)
	payload, _ = sjson.Set(payload, "remindCount", step.remindCount)
	payload, _ = sjson.Set(payload, "priority", p.Label())

	plural := "s"
	if step.remindCount == 1 {
		plural = ""
	}
	body := fmt.Sprintf("You have been reminded %d time%s about this item.", step.remindCount, plural)
	return d.notifier.ScheduleAt(ctx, items.MissedNotificationID(kind, id), step.nextRemindAt,
		fmt.Sprintf("Missed %s: %s", kind, title), body, payload)
}

// Dismiss permanently excludes an item from future sweeps and cancels its
// pending notification. There is no undismiss.
func (d *Detector) Dismiss(ctx context.Context, kind types.ItemKind, id string) error {
	dismissed := true
	var err error
	switch kind {
	case types.KindTask:
		status := types.StatusDismissed
		_, err = d.tasks.Update(ctx, id, store.UpdateTask{IsDismissed: &dismissed, Status: &status})
	case types.KindTodo:
		_, err = d.todos.Update(ctx, id, store.UpdateTodo{IsDismissed: &dismissed})
	case types.KindReminder:
		_, err = d.reminders.Update(ctx, id, store.UpdateReminder{IsDismissed: &dismissed})
	default:
		return fmt.Errorf("unknown item kind: %s", kind)
	}
	if err != nil {
		return err
	}
	return d.notifier.Cancel(ctx, items.MissedNotificationID(kind, id))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
