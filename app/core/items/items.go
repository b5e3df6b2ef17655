// Package items holds the use cases behind every task, todo, reminder and
// person mutation, including the recurrence handling that the stores stay
// ignorant of.
package items

import (
	"context"
	"fmt"
	"strings"
	"time"

	"buddy/app/core/notify"
	"buddy/app/core/recurrence"
	"buddy/app/core/store"
	"buddy/app/pkg/logger"
	"buddy/app/pkg/types"
)

type Service struct {
	tasks     *store.TaskStore
	todos     *store.TodoStore
	reminders *store.ReminderStore
	people    *store.PeopleStore
	notifier  notify.Scheduler
}

func NewService(tasks *store.TaskStore, todos *store.TodoStore, reminders *store.ReminderStore, people *store.PeopleStore, notifier notify.Scheduler) *Service {
	return &Service{
		tasks:     tasks,
		todos:     todos,
		reminders: reminders,
		people:    people,
		notifier:  notifier,
	}
}

// MissedNotificationID builds the deterministic notification id for a missed
// item, so scheduling and cancelation always address the same row.
func MissedNotificationID(kind types.ItemKind, itemID string) string {
	return fmt.Sprintf("missed-%s-%s", kind, itemID)
}

type AddTaskInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Priority    types.Priority
	PersonID    string
}

func (s *Service) AddTask(ctx context.Context, input AddTaskInput) (store.Task, error) {
	relation, err := s.resolveRelation(ctx, input.PersonID)
	if err != nil {
		return store.Task{}, err
	}
	return s.tasks.Create(ctx, store.CreateTask{
		Title:        input.Title,
		Description:  input.Description,
		DueDate:      input.DueDate,
		Priority:     input.Priority,
		PersonID:     input.PersonID,
		RelationType: relation,
	})
}

type AddTodoInput struct {
	Title       string
	Priority    types.Priority
	PersonID    string
	DueDate     time.Time
	IsRecurring bool
	Recurrence  string
}

// AddTodo creates a todo. Recurring todos with no explicit due date get the
// first valid occurrence of their pattern.
func (s *Service) AddTodo(ctx context.Context, input AddTodoInput) (store.Todo, error) {
	relation, err := s.resolveRelation(ctx, input.PersonID)
	if err != nil {
		return store.Todo{}, err
	}
	due := input.DueDate
	if input.IsRecurring && due.IsZero() {
		due = recurrence.FirstDueDate(input.Recurrence, time.Now())
	}
	return s.todos.Create(ctx, store.CreateTodo{
		Title:        input.Title,
		Priority:     input.Priority,
		PersonID:     input.PersonID,
		RelationType: relation,
		DueDate:      due,
		IsRecurring:  input.IsRecurring,
		Recurrence:   input.Recurrence,
	})
}

type AddReminderInput struct {
	Title       string
	Description string
	RemindAt    time.Time
	IsRecurring bool
	Recurrence  string
	PersonID    string
	Priority    types.Priority
}

func (s *Service) AddReminder(ctx context.Context, input AddReminderInput) (store.Reminder, error) {
	relation, err := s.resolveRelation(ctx, input.PersonID)
	if err != nil {
		return store.Reminder{}, err
	}
	remindAt := input.RemindAt
	if input.IsRecurring && remindAt.IsZero() {
		remindAt = recurrence.FirstDueDate(input.Recurrence, time.Now())
	}
	return s.reminders.Create(ctx, store.CreateReminder{
		Title:        input.Title,
		Description:  input.Description,
		RemindAt:     remindAt,
		IsRecurring:  input.IsRecurring,
		Recurrence:   input.Recurrence,
		PersonID:     input.PersonID,
		RelationType: relation,
		Priority:     input.Priority,
	})
}

// ToggleResult is the outcome of ToggleTodo. Next is set only when a
// recurring todo rolled over to its next occurrence.
type ToggleResult struct {
	Todo store.Todo
	Next *store.Todo
}

// ToggleTodo flips a plain todo. Completing an incomplete recurring todo
// instead closes the current occurrence: the next one is spawned and the
// original removed, never marked completed. Rolling over only happens on the
// completion transition; toggling a completed recurring todo back to open is
// a plain flip.
func (s *Service) ToggleTodo(ctx context.Context, id string) (ToggleResult, error) {
	todo, err := s.todos.GetByID(ctx, id)
	if err != nil {
		return ToggleResult{}, err
	}

	if todo.IsRecurring && !todo.IsCompleted {
		from := todo.DueDate
		if from.IsZero() {
			from = time.Now()
		}
		next, err := s.todos.Create(ctx, store.CreateTodo{
			Title:        todo.Title,
			Priority:     todo.Priority,
			PersonID:     todo.PersonID,
			RelationType: todo.RelationType,
			DueDate:      recurrence.NextDueDate(todo.Recurrence, from),
			IsRecurring:  true,
			Recurrence:   todo.Recurrence,
		})
		if err != nil {
			return ToggleResult{}, err
		}
		if err := s.todos.Delete(ctx, todo.ID); err != nil {
			return ToggleResult{}, err
		}
		s.cancelMissedNotification(ctx, types.KindTodo, todo.ID)
		return ToggleResult{Todo: todo, Next: &next}, nil
	}

	toggled, err := s.todos.ToggleComplete(ctx, id)
	if err != nil {
		return ToggleResult{}, err
	}
	if toggled.IsCompleted {
		s.cancelMissedNotification(ctx, types.KindTodo, toggled.ID)
	}
	return ToggleResult{Todo: toggled}, nil
}

// CompleteTask marks a task done and clears any missed-escalation state.
func (s *Service) CompleteTask(ctx context.Context, id string) (store.Task, error) {
	status := types.StatusDone
	now := time.Now()
	missed := false
	task, err := s.tasks.Update(ctx, id, store.UpdateTask{
		Status:      &status,
		CompletedAt: &now,
		IsMissed:    &missed,
	})
	if err != nil {
		return store.Task{}, err
	}
	s.cancelMissedNotification(ctx, types.KindTask, id)
	return task, nil
}

// CompleteReminder finishes a reminder. Recurring reminders roll forward to
// the next occurrence with their escalation state reset; one-shot reminders
// are simply marked done.
func (s *Service) CompleteReminder(ctx context.Context, id string) (store.Reminder, error) {
	r, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return store.Reminder{}, err
	}
	s.cancelMissedNotification(ctx, types.KindReminder, id)

	if r.IsRecurring {
		next := recurrence.NextDueDate(r.Recurrence, r.RemindAt)
		missed := false
		var zero time.Time
		count := 0
		return s.reminders.Update(ctx, id, store.UpdateReminder{
			RemindAt:     &next,
			IsMissed:     &missed,
			MissedAt:     &zero,
			NextRemindAt: &zero,
			RemindCount:  &count,
		})
	}
	done := true
	return s.reminders.Update(ctx, id, store.UpdateReminder{IsDone: &done})
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	s.cancelMissedNotification(ctx, types.KindTask, id)
	return nil
}

func (s *Service) DeleteTodo(ctx context.Context, id string) error {
	if err := s.todos.Delete(ctx, id); err != nil {
		return err
	}
	s.cancelMissedNotification(ctx, types.KindTodo, id)
	return nil
}

func (s *Service) DeleteReminder(ctx context.Context, id string) error {
	if err := s.reminders.Delete(ctx, id); err != nil {
		return err
	}
	s.cancelMissedNotification(ctx, types.KindReminder, id)
	return nil
}

type AddPersonInput struct {
	Name           string
	Relationship   string
	CustomRelation string
	Priority       types.Priority
	Birthday       string
	Phone          string
	Notes          string
}

func (s *Service) AddPerson(ctx context.Context, input AddPersonInput) (store.Person, error) {
	if input.Birthday != "" {
		if _, err := time.Parse("2006-01-02", input.Birthday); err != nil {
			return store.Person{}, fmt.Errorf("birthday must be YYYY-MM-DD: %q", input.Birthday)
		}
	}
	return s.people.Create(ctx, store.CreatePerson{
		Name:           input.Name,
		Relationship:   types.NormalizeRelationship(input.Relationship),
		CustomRelation: input.CustomRelation,
		Priority:       input.Priority,
		Birthday:       input.Birthday,
		Phone:          input.Phone,
		Notes:          input.Notes,
	})
}

func (s *Service) UpdatePerson(ctx context.Context, id string, input store.UpdatePerson) (store.Person, error) {
	return s.people.Update(ctx, id, input)
}

func (s *Service) DeletePerson(ctx context.Context, id string) error {
	return s.people.Delete(ctx, id)
}

// FindPersonByName resolves a person by case-insensitive name match, used
// when the model hands back a name instead of an id.
func (s *Service) FindPersonByName(ctx context.Context, name string) (store.Person, bool, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return store.Person{}, false, nil
	}
	people, err := s.people.GetAll(ctx)
	if err != nil {
		return store.Person{}, false, err
	}
	for _, p := range people {
		if strings.ToLower(p.Name) == name {
			return p, true, nil
		}
	}
	return store.Person{}, false, nil
}

func (s *Service) Tasks() *store.TaskStore         { return s.tasks }
func (s *Service) Todos() *store.TodoStore         { return s.todos }
func (s *Service) Reminders() *store.ReminderStore { return s.reminders }
func (s *Service) People() *store.PeopleStore      { return s.people }

// resolveRelation checks the referenced person exists and returns their
// relationship label for denormalized storage on the item row.
func (s *Service) resolveRelation(ctx context.Context, personID string) (string, error) {
	if strings.TrimSpace(personID) == "" {
		return "", nil
	}
	p, err := s.people.GetByID(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("person %s not found", personID)
	}
	if p.Relationship == types.RelationCustom && p.CustomRelation != "" {
		return p.CustomRelation, nil
	}
	return string(p.Relationship), nil
}

func (s *Service) cancelMissedNotification(ctx context.Context, kind types.ItemKind, id string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Cancel(ctx, MissedNotificationID(kind, id)); err != nil {
		logger.Error("Cancel notification for %s %s: %v", kind, id, err)
	}
}
