package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"buddy/app/pkg/types"
)

type TodoStore struct {
	db *DB
}

func NewTodoStore(db *DB) *TodoStore {
	return &TodoStore{db: db}
}

type CreateTodo struct {
	Title        string
	Priority     types.Priority
	PersonID     string
	RelationType string
	DueDate      time.Time
	IsRecurring  bool
	Recurrence   string
}

type UpdateTodo struct {
	Title        *string
	Priority     *types.Priority
	DueDate      *time.Time
	IsMissed     *bool
	MissedAt     *time.Time
	NextRemindAt *time.Time
	RemindCount  *int
	IsDismissed  *bool
}

const todoColumns = `id, title, is_completed, priority, COALESCE(person_id, ''), COALESCE(relation_type, ''), due_date,
	is_recurring, COALESCE(recurrence, ''), is_missed, missed_at, next_remind_at, remind_count, is_dismissed, completed_at, created_at, updated_at`

func (s *TodoStore) Create(ctx context.Context, input CreateTodo) (Todo, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Todo{}, fmt.Errorf("title is required")
	}
	if input.IsRecurring && strings.TrimSpace(input.Recurrence) == "" {
		return Todo{}, fmt.Errorf("recurrence is required for recurring todos")
	}
	now := time.Now()
	td := Todo{
		ID:           uuid.NewString(),
		Title:        title,
		Priority:     types.ClampPriority(int(input.Priority)),
		PersonID:     input.PersonID,
		RelationType: input.RelationType,
		DueDate:      input.DueDate,
		IsRecurring:  input.IsRecurring,
		Recurrence:   input.Recurrence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.Conn().ExecContext(ctx, `
INSERT INTO todos (id, title, is_completed, priority, person_id, relation_type, due_date, is_recurring, recurrence, is_missed, missed_at, next_remind_at, remind_count, is_dismissed, completed_at, is_deleted, created_at, updated_at)
VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, 0, 0, NULL, 0, ?, ?)`,
		td.ID, td.Title, int(td.Priority), nullIfEmpty(td.PersonID), nullIfEmpty(td.RelationType),
		millisOrNil(td.DueDate), boolToInt(td.IsRecurring), nullIfEmpty(td.Recurrence),
		millis(td.CreatedAt), millis(td.UpdatedAt))
	if err != nil {
		return Todo{}, err
	}
	return td, nil
}

func (s *TodoStore) GetAll(ctx context.Context) ([]Todo, error) {
	return s.query(ctx, `SELECT `+todoColumns+` FROM todos WHERE is_deleted = 0 ORDER BY created_at DESC`)
}

func (s *TodoStore) GetByID(ctx context.Context, id string) (Todo, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ? AND is_deleted = 0`, id)
	return scanTodo(row)
}

func (s *TodoStore) GetByPersonID(ctx context.Context, personID string) ([]Todo, error) {
	return s.query(ctx, `SELECT `+todoColumns+` FROM todos WHERE person_id = ? AND is_deleted = 0 ORDER BY created_at DESC`, personID)
}

func (s *TodoStore) query(ctx context.Context, query string, args ...interface{}) ([]Todo, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Todo, 0)
	for rows.Next() {
		td, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, td)
	}
	return items, rows.Err()
}

func (s *TodoStore) Update(ctx context.Context, id string, input UpdateTodo) (Todo, error) {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	if input.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*input.Title))
	}
	if input.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, int(types.ClampPriority(int(*input.Priority))))
	}
	if input.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, millisOrNil(*input.DueDate))
	}
	if input.IsMissed != nil {
		sets = append(sets, "is_missed = ?")
		args = append(args, boolToInt(*input.IsMissed))
	}
	if input.MissedAt != nil {
		sets = append(sets, "missed_at = ?")
		args = append(args, millisOrNil(*input.MissedAt))
	}
	if input.NextRemindAt != nil {
		sets = append(sets, "next_remind_at = ?")
		args = append(args, millisOrNil(*input.NextRemindAt))
	}
	if input.RemindCount != nil {
		sets = append(sets, "remind_count = ?")
		args = append(args, *input.RemindCount)
	}
	if input.IsDismissed != nil {
		sets = append(sets, "is_dismissed = ?")
		args = append(args, boolToInt(*input.IsDismissed))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, millis(time.Now()))
		args = append(args, id)
		query := `UPDATE todos SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND is_deleted = 0`
		if _, err := s.db.Conn().ExecContext(ctx, query, args...); err != nil {
			return Todo{}, err
		}
	}
	return s.GetByID(ctx, id)
}

// ToggleComplete flips the completion flag and stamps or clears completed_at.
func (s *TodoStore) ToggleComplete(ctx context.Context, id string) (Todo, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return Todo{}, err
	}
	completed := !current.IsCompleted
	completedAt := interface{}(nil)
	if completed {
		completedAt = millis(time.Now())
	}
	_, err = s.db.Conn().ExecContext(ctx, `UPDATE todos SET is_completed = ?, completed_at = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		boolToInt(completed), completedAt, millis(time.Now()), id)
	if err != nil {
		return Todo{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *TodoStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE todos SET is_deleted = 1, updated_at = ? WHERE id = ?`, millis(time.Now()), id)
	return err
}

func scanTodo(row rowScanner) (Todo, error) {
	var (
		td           Todo
		isCompleted  int
		priority     int
		dueDate      sql.NullInt64
		isRecurring  int
		isMissed     int
		missedAt     sql.NullInt64
		nextRemindAt sql.NullInt64
		isDismissed  int
		completedAt  sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&td.ID, &td.Title, &isCompleted, &priority, &td.PersonID, &td.RelationType, &dueDate,
		&isRecurring, &td.Recurrence, &isMissed, &missedAt, &nextRemindAt, &td.Missed.RemindCount, &isDismissed,
		&completedAt, &createdAt, &updatedAt); err != nil {
		return Todo{}, err
	}
	td.IsCompleted = isCompleted == 1
	td.Priority = types.Priority(priority)
	td.DueDate = timeFromMillis(dueDate)
	td.IsRecurring = isRecurring == 1
	td.Missed.IsMissed = isMissed == 1
	td.Missed.MissedAt = timeFromMillis(missedAt)
	td.Missed.NextRemindAt = timeFromMillis(nextRemindAt)
	td.Missed.IsDismissed = isDismissed == 1
	td.CompletedAt = timeFromMillis(completedAt)
	td.CreatedAt = time.UnixMilli(createdAt)
	td.UpdatedAt = time.UnixMilli(updatedAt)
	return td, nil
}
