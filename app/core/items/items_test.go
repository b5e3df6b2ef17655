package items

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"buddy/app/core/notify"
	"buddy/app/core/store"
	"buddy/app/pkg/types"
)

func newTestService(t *testing.T) (*Service, *notify.Store) {
	t.Helper()
	db, err := store.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notifStore, err := notify.NewStore(db.Conn())
	if err != nil {
		t.Fatalf("notify store: %v", err)
	}
	sched := notify.NewLocalScheduler(notifStore, notify.LogDeliverer{})

	svc := NewService(
		store.NewTaskStore(db),
		store.NewTodoStore(db),
		store.NewReminderStore(db),
		store.NewPeopleStore(db),
		sched,
	)
	return svc, notifStore
}

func TestAddTaskResolvesPersonRelation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.AddPerson(ctx, AddPersonInput{Name: "Maya", Relationship: "family"})
	if err != nil {
		t.Fatalf("add person: %v", err)
	}

	task, err := svc.AddTask(ctx, AddTaskInput{Title: "Buy gift", PersonID: p.ID})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.RelationType != "family" {
		t.Fatalf("relation = %q, want family", task.RelationType)
	}

	if _, err := svc.AddTask(ctx, AddTaskInput{Title: "Orphan", PersonID: "no-such-person"}); err == nil {
		t.Fatal("expected error for unknown person")
	}
}

func TestAddPersonRejectsBadBirthday(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.AddPerson(context.Background(), AddPersonInput{Name: "Omar", Birthday: "April 12"}); err == nil {
		t.Fatal("expected error for non-ISO birthday")
	}
}

func TestAddRecurringTodoGetsFirstDueDate(t *testing.T) {
	svc, _ := newTestService(t)

	todo, err := svc.AddTodo(context.Background(), AddTodoInput{
		Title:       "Water plants",
		IsRecurring: true,
		Recurrence:  "weekly:0",
	})
	if err != nil {
		t.Fatalf("add todo: %v", err)
	}
	if todo.DueDate.IsZero() {
		t.Fatal("recurring todo with no due date should get the first occurrence")
	}
	if todo.DueDate.Weekday() != time.Sunday {
		t.Fatalf("weekly:0 due on %v, want Sunday", todo.DueDate.Weekday())
	}
}

func TestToggleRecurringTodoSpawnsNextOccurrence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.Local)
	todo, err := svc.AddTodo(ctx, AddTodoInput{
		Title:       "Weekly review",
		DueDate:     due,
		IsRecurring: true,
		Recurrence:  "weekly:3",
	})
	if err != nil {
		t.Fatalf("add todo: %v", err)
	}

	res, err := svc.ToggleTodo(ctx, todo.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Todo.ID != todo.ID || res.Todo.IsCompleted {
		t.Fatalf("returned original should be unchanged: %+v", res.Todo)
	}
	if res.Next == nil {
		t.Fatal("expected a spawned next occurrence")
	}
	next := *res.Next
	if next.ID == todo.ID {
		t.Fatal("expected a fresh row for the next occurrence")
	}
	if next.IsCompleted {
		t.Fatal("spawned occurrence must start incomplete")
	}
	wantDue := due.AddDate(0, 0, 7)
	if !next.DueDate.Equal(wantDue) {
		t.Fatalf("next due = %v, want %v", next.DueDate, wantDue)
	}

	// Original row is gone, and it never went through the completed state.
	if _, err := svc.Todos().GetByID(ctx, todo.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("original should be deleted, got %v", err)
	}
}

func TestTogglePlainTodoFlipsCompletion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	todo, err := svc.AddTodo(ctx, AddTodoInput{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("add todo: %v", err)
	}

	res, err := svc.ToggleTodo(ctx, todo.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Next != nil {
		t.Fatal("plain todo must not spawn a next occurrence")
	}
	if res.Todo.ID != todo.ID || !res.Todo.IsCompleted {
		t.Fatalf("plain toggle: %+v", res.Todo)
	}
}

func TestUncompletingRecurringTodoDoesNotSpawn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	todo, err := svc.AddTodo(ctx, AddTodoInput{Title: "Weekly review", IsRecurring: true, Recurrence: "weekly:3"})
	if err != nil {
		t.Fatalf("add todo: %v", err)
	}
	// Force the completed state at the store level so the next toggle is the
	// uncompletion transition.
	if _, err := svc.Todos().ToggleComplete(ctx, todo.ID); err != nil {
		t.Fatalf("force complete: %v", err)
	}

	res, err := svc.ToggleTodo(ctx, todo.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if res.Next != nil {
		t.Fatal("uncompletion must not spawn an occurrence")
	}
	if res.Todo.IsCompleted {
		t.Fatal("todo should be open again")
	}
}

func TestCompleteTaskClearsMissedStateAndNotification(t *testing.T) {
	svc, notifStore := newTestService(t)
	ctx := context.Background()

	task, err := svc.AddTask(ctx, AddTaskInput{Title: "File taxes", DueDate: time.Now().Add(-48 * time.Hour)})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	missed := true
	status := types.StatusMissed
	if _, err := svc.Tasks().Update(ctx, task.ID, store.UpdateTask{IsMissed: &missed, Status: &status}); err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	notifID := MissedNotificationID(types.KindTask, task.ID)
	if err := notifStore.Upsert(ctx, notify.Notification{ID: notifID, Title: "t", Body: "b", DeliverAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	done, err := svc.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != types.StatusDone || done.Missed.IsMissed {
		t.Fatalf("unexpected task after completion: %+v", done)
	}

	n, err := notifStore.Get(ctx, notifID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if n.Status != notify.StatusCanceled {
		t.Fatalf("notification status = %q, want canceled", n.Status)
	}
}

func TestCompleteRecurringReminderRollsForward(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	remindAt := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.Local)
	r, err := svc.AddReminder(ctx, AddReminderInput{
		Title:       "Take medication",
		RemindAt:    remindAt,
		IsRecurring: true,
		Recurrence:  "weekly:3",
		Priority:    types.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("add reminder: %v", err)
	}

	rolled, err := svc.CompleteReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if rolled.IsDone {
		t.Fatal("recurring reminder should stay open")
	}
	want := remindAt.AddDate(0, 0, 7)
	if !rolled.RemindAt.Equal(want) {
		t.Fatalf("remind_at = %v, want %v", rolled.RemindAt, want)
	}
	if rolled.Missed.IsMissed || rolled.Missed.RemindCount != 0 {
		t.Fatalf("escalation state not reset: %+v", rolled.Missed)
	}
}

func TestCompleteOneShotReminderMarksDone(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.AddReminder(ctx, AddReminderInput{Title: "Call mom", RemindAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("add reminder: %v", err)
	}
	done, err := svc.CompleteReminder(ctx, r.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.IsDone {
		t.Fatal("one-shot reminder should be done")
	}
}

func TestFindPersonByNameIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddPerson(ctx, AddPersonInput{Name: "Maya", Relationship: "family"}); err != nil {
		t.Fatalf("add person: %v", err)
	}

	p, ok, err := svc.FindPersonByName(ctx, "  mAyA ")
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if p.Name != "Maya" {
		t.Fatalf("found %q", p.Name)
	}

	if _, ok, _ := svc.FindPersonByName(ctx, "nobody"); ok {
		t.Fatal("unexpected match")
	}
}
