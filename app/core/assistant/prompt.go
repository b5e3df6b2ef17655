package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	config "buddy/app/configs"
	"buddy/app/core/store"
	"buddy/app/pkg/types"
)

const systemPreamble = `You are %s, a friendly personal assistant.
You help manage people, tasks, todos, and reminders.
Detect the language of the user's message and always respond in that same language.
The JSON structure must always be in English. Only the "message" field should be in the user's language.

Always respond ONLY in this exact JSON format, nothing else:
{
  "intent": "INTENT_TYPE",
  "action": "ACTION_TYPE",
  "message": "Conversational response in user's language",
  "data": {}
}

IMPORTANT rules for data fields:
- To link a task/todo/reminder to a person: use "person_id" from that person's [id:...] in the people list.
- To complete/delete a task: use "id" from that task's [id:...] in the tasks list.
- To dismiss a missed item: use "id" and "type" (task/todo/reminder) from the missed items list.
- Dates as Unix ms timestamps. "due_date" for tasks/todos, "remind_at" for reminders.
- Recurring todos: set "is_recurring":true and "recurrence" string. Formats: "weekly:N" (N=0 Sun ... 6 Sat), "monthly:D" (D=1-31 day of month), "monthly:first:N" (first weekday N), "monthly:last:N" (last weekday N).

Valid intents and actions:
PEOPLE_INTENT: CREATE_PERSON, UPDATE_PERSON, DELETE_PERSON, GET_PERSON, LIST_PEOPLE, ADD_BIRTHDAY
TASK_INTENT: CREATE_TASK, UPDATE_TASK, COMPLETE_TASK, DELETE_TASK, LIST_TASKS, LIST_TASKS_FOR_PERSON
TODO_INTENT: CREATE_TODO, COMPLETE_TODO, DELETE_TODO, LIST_TODOS, LIST_TODOS_FOR_PERSON
REMINDER_INTENT: CREATE_REMINDER, UPDATE_REMINDER, DELETE_REMINDER, LIST_REMINDERS, CREATE_RECURRING
QUERY_INTENT: QUERY_TODAY, QUERY_UPCOMING, QUERY_BIRTHDAYS, QUERY_OVERDUE, QUERY_PERSON_SUMMARY, QUERY_PRIORITY
MISSED_INTENT: DISMISS_MISSED_ITEM, LIST_MISSED_ITEMS, SNOOZE_MISSED_ITEM
SUMMARY_INTENT: DAILY_SUMMARY, GENERATE_SUMMARY, PERSON_SUMMARY
SETTINGS_INTENT: UPDATE_NOTIF_TIME, UPDATE_BIRTHDAY_THRESHOLD, TOGGLE_NOTIFICATIONS
CONVERSATION_INTENT: GENERAL_CHAT, UNKNOWN`

// PromptBuilder assembles the model input: the fixed contract preamble plus
// a live snapshot of domain state around the user's message.
type PromptBuilder struct {
	cfg       *config.Manager
	people    *store.PeopleStore
	tasks     *store.TaskStore
	todos     *store.TodoStore
	reminders *store.ReminderStore
	chat      *store.ChatStore

	now func() time.Time
}

func NewPromptBuilder(cfg *config.Manager, people *store.PeopleStore, tasks *store.TaskStore, todos *store.TodoStore, reminders *store.ReminderStore, chat *store.ChatStore) *PromptBuilder {
	return &PromptBuilder{
		cfg:       cfg,
		people:    people,
		tasks:     tasks,
		todos:     todos,
		reminders: reminders,
		chat:      chat,
		now:       time.Now,
	}
}

type snapshot struct {
	people    []store.Person
	tasks     []store.Task
	todos     []store.Todo
	reminders []store.Reminder
	messages  []store.ChatMessage
}

// loadSnapshot fans the five repository reads out concurrently and joins
// them before any formatting starts.
func (b *PromptBuilder) loadSnapshot(ctx context.Context, sessionID string, historyLimit int) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.people, err = b.people.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.tasks, err = b.tasks.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.todos, err = b.todos.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.reminders, err = b.reminders.GetAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.messages, err = b.chat.RecentMessages(gctx, sessionID, historyLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (b *PromptBuilder) Build(ctx context.Context, sessionID, userMessage string) (string, error) {
	cfg := b.cfg.Get()
	snap, err := b.loadSnapshot(ctx, sessionID, cfg.Assistant.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load prompt snapshot: %w", err)
	}

	now := b.now()
	dayStart := startOfDay(now)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var sb strings.Builder
	fmt.Fprintf(&sb, systemPreamble, cfg.Assistant.Name)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&sb, "Current time: %s\n", now.Format("15:04"))
	fmt.Fprintf(&sb, "User name: %s\n\n", cfg.Assistant.UserName)

	fmt.Fprintf(&sb, "User's people: %s\n", peopleSummary(snap.people))
	fmt.Fprintf(&sb, "Today's tasks: %s\n", todayTasksSummary(snap.tasks, dayStart, dayEnd))
	fmt.Fprintf(&sb, "Today's todos: %s\n", todayTodosSummary(snap.todos, dayStart, dayEnd))
	fmt.Fprintf(&sb, "Today's reminders: %s\n", todayRemindersSummary(snap.reminders, dayStart, dayEnd))
	fmt.Fprintf(&sb, "Missed items: %s\n", missedSummary(snap.tasks, snap.todos, snap.reminders, dayStart, now))
	fmt.Fprintf(&sb, "Upcoming birthdays: %s\n\n", birthdaySummary(snap.people, now, cfg.Assistant.BirthdayWindow))

	sb.WriteString("Recent chat history:\n")
	sb.WriteString(historySummary(snap.messages, cfg.Assistant.UserName, cfg.Assistant.Name))
	sb.WriteString("\n\n[USER MESSAGE]\n")
	sb.WriteString(userMessage)
	sb.WriteString("\n\n[ASSISTANT]")
	return sb.String(), nil
}

// DailySummary builds the plain-text morning greeting prompt. Unlike Build,
// the model's answer is free text with no JSON contract.
func (b *PromptBuilder) DailySummary(ctx context.Context) (string, error) {
	cfg := b.cfg.Get()
	snap, err := b.loadSnapshot(ctx, "", 0)
	if err != nil {
		return "", fmt.Errorf("load summary snapshot: %w", err)
	}

	now := b.now()
	dayStart := startOfDay(now)
	dayEnd := dayStart.AddDate(0, 0, 1)

	taskTitles := make([]string, 0)
	for _, t := range snap.tasks {
		if inWindow(t.DueDate, dayStart, dayEnd) && t.Status != types.StatusDone {
			taskTitles = append(taskTitles, t.Title)
		}
	}
	todoTitles := make([]string, 0)
	for _, t := range snap.todos {
		if inWindow(t.DueDate, dayStart, dayEnd) && !t.IsCompleted {
			todoTitles = append(todoTitles, t.Title)
		}
	}
	reminderTitles := make([]string, 0)
	for _, r := range snap.reminders {
		if inWindow(r.RemindAt, dayStart, dayEnd) && !r.IsDone {
			reminderTitles = append(reminderTitles, r.Title)
		}
	}
	missedCount := len(missedTasks(snap.tasks, dayStart)) +
		len(missedTodos(snap.todos, dayStart)) +
		len(missedReminders(snap.reminders, now))
	birthdayNames := make([]string, 0)
	for _, p := range snap.people {
		if days, ok := daysUntilBirthday(p.Birthday, now); ok && days <= cfg.Assistant.BirthdayWindow {
			birthdayNames = append(birthdayNames, p.Name)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a friendly personal assistant. Generate a warm, concise daily summary greeting for %s.\n",
		cfg.Assistant.Name, cfg.Assistant.UserName)
	fmt.Fprintf(&sb, "Today is %s.\n", now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&sb, "Tasks due today: %s\n", orNone(taskTitles))
	fmt.Fprintf(&sb, "Todos due today: %s\n", orNone(todoTitles))
	fmt.Fprintf(&sb, "Reminders today: %s\n", orNone(reminderTitles))
	fmt.Fprintf(&sb, "Missed items: %d\n", missedCount)
	fmt.Fprintf(&sb, "Upcoming birthdays: %s\n\n", orNone(birthdayNames))
	sb.WriteString("Write a friendly 2-3 sentence summary. Be warm and encouraging. No JSON needed, just plain text.")
	return sb.String(), nil
}

func peopleSummary(people []store.Person) string {
	if len(people) == 0 {
		return "No people added yet."
	}
	parts := make([]string, 0, len(people))
	for _, p := range people {
		parts = append(parts, fmt.Sprintf("%s [id:%s] (%s, priority: %s)", p.Name, p.ID, p.Relationship, p.Priority.Label()))
	}
	return strings.Join(parts, ", ")
}

func todayTasksSummary(tasks []store.Task, dayStart, dayEnd time.Time) string {
	lines := make([]string, 0)
	for _, t := range tasks {
		if !inWindow(t.DueDate, dayStart, dayEnd) || t.Status == types.StatusDone || t.Status == types.StatusDismissed {
			continue
		}
		line := fmt.Sprintf("- %s [id:%s] [%s]", t.Title, t.ID, t.Priority.Label())
		if t.PersonID != "" {
			line += fmt.Sprintf(" [person_id:%s]", t.PersonID)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "No tasks due today."
	}
	return "\n" + strings.Join(lines, "\n")
}

func todayTodosSummary(todos []store.Todo, dayStart, dayEnd time.Time) string {
	lines := make([]string, 0)
	for _, t := range todos {
		if !inWindow(t.DueDate, dayStart, dayEnd) || t.IsCompleted {
			continue
		}
		line := fmt.Sprintf("- %s [id:%s]", t.Title, t.ID)
		if t.PersonID != "" {
			line += fmt.Sprintf(" [person_id:%s]", t.PersonID)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "No todos due today."
	}
	return "\n" + strings.Join(lines, "\n")
}

func todayRemindersSummary(reminders []store.Reminder, dayStart, dayEnd time.Time) string {
	lines := make([]string, 0)
	for _, r := range reminders {
		if !inWindow(r.RemindAt, dayStart, dayEnd) || r.IsDone {
			continue
		}
		line := fmt.Sprintf("- %s [id:%s] at %s", r.Title, r.ID, r.RemindAt.Format("15:04"))
		if r.PersonID != "" {
			line += fmt.Sprintf(" [person_id:%s]", r.PersonID)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "No reminders today."
	}
	return "\n" + strings.Join(lines, "\n")
}

func missedTasks(tasks []store.Task, dayStart time.Time) []store.Task {
	out := make([]store.Task, 0)
	for _, t := range tasks {
		if t.DueDate.IsZero() || !t.DueDate.Before(dayStart) || t.Missed.IsDismissed {
			continue
		}
		if t.Status != types.StatusPending && t.Status != types.StatusInProgress && t.Status != types.StatusMissed {
			continue
		}
		out = append(out, t)
	}
	return out
}

func missedTodos(todos []store.Todo, dayStart time.Time) []store.Todo {
	out := make([]store.Todo, 0)
	for _, t := range todos {
		if t.DueDate.IsZero() || !t.DueDate.Before(dayStart) || t.IsCompleted || t.Missed.IsDismissed {
			continue
		}
		out = append(out, t)
	}
	return out
}

func missedReminders(reminders []store.Reminder, now time.Time) []store.Reminder {
	out := make([]store.Reminder, 0)
	for _, r := range reminders {
		if !r.RemindAt.Before(now) || r.IsDone || r.Missed.IsDismissed {
			continue
		}
		out = append(out, r)
	}
	return out
}

func missedSummary(tasks []store.Task, todos []store.Todo, reminders []store.Reminder, dayStart, now time.Time) string {
	mt := missedTasks(tasks, dayStart)
	md := missedTodos(todos, dayStart)
	mr := missedReminders(reminders, now)
	total := len(mt) + len(md) + len(mr)
	if total == 0 {
		return "No missed items."
	}
	parts := make([]string, 0, total)
	for _, t := range mt {
		parts = append(parts, fmt.Sprintf("%s [type:task,id:%s]", t.Title, t.ID))
	}
	for _, t := range md {
		parts = append(parts, fmt.Sprintf("%s [type:todo,id:%s]", t.Title, t.ID))
	}
	for _, r := range mr {
		parts = append(parts, fmt.Sprintf("%s [type:reminder,id:%s]", r.Title, r.ID))
	}
	return fmt.Sprintf("%d missed item(s): %s", total, strings.Join(parts, ", "))
}

func birthdaySummary(people []store.Person, now time.Time, windowDays int) string {
	parts := make([]string, 0)
	for _, p := range people {
		days, ok := daysUntilBirthday(p.Birthday, now)
		if !ok || days > windowDays {
			continue
		}
		if days == 0 {
			parts = append(parts, fmt.Sprintf("%s: TODAY!", p.Name))
			continue
		}
		next := nextBirthdayDate(p.Birthday, now)
		parts = append(parts, fmt.Sprintf("%s: in %d day(s) (%s)", p.Name, days, next.Format("Jan 2")))
	}
	if len(parts) == 0 {
		return "No upcoming birthdays."
	}
	return strings.Join(parts, ", ")
}

func historySummary(msgs []store.ChatMessage, userName, assistantName string) string {
	if len(msgs) == 0 {
		return "No previous messages in this session."
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := assistantName
		if m.Sender == types.SenderUser {
			who = userName
		}
		lines = append(lines, fmt.Sprintf("%s: %s", who, m.Message))
	}
	return strings.Join(lines, "\n")
}

// daysUntilBirthday returns the calendar-day distance to this year's
// occurrence of a "YYYY-MM-DD" birthday. Occurrences already past this year
// report ok=false, matching the lookahead-only window.
func daysUntilBirthday(birthday string, now time.Time) (int, bool) {
	bd, err := time.Parse("2006-01-02", birthday)
	if err != nil {
		return 0, false
	}
	this := time.Date(now.Year(), bd.Month(), bd.Day(), 0, 0, 0, 0, now.Location())
	days := int(this.Sub(startOfDay(now)).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days, true
}

func nextBirthdayDate(birthday string, now time.Time) time.Time {
	bd, _ := time.Parse("2006-01-02", birthday)
	return time.Date(now.Year(), bd.Month(), bd.Day(), 0, 0, 0, 0, now.Location())
}

func inWindow(t, start, end time.Time) bool {
	return !t.IsZero() && !t.Before(start) && t.Before(end)
}

func orNone(titles []string) string {
	if len(titles) == 0 {
		return "none"
	}
	return strings.Join(titles, ", ")
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
