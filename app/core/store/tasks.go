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

type TaskStore struct {
	db *DB
}

func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

type CreateTask struct {
	Title        string
	Description  string
	DueDate      time.Time
	Priority     types.Priority
	PersonID     string
	RelationType string
}

type UpdateTask struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	Priority     *types.Priority
	Status       *types.TaskStatus
	IsMissed     *bool
	MissedAt     *time.Time
	NextRemindAt *time.Time
	RemindCount  *int
	IsDismissed  *bool
	CompletedAt  *time.Time
}

const taskColumns = `id, title, COALESCE(description, ''), due_date, priority, status, COALESCE(person_id, ''), COALESCE(relation_type, ''),
	is_missed, missed_at, next_remind_at, remind_count, is_dismissed, completed_at, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, input CreateTask) (Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Task{}, fmt.Errorf("title is required")
	}
	now := time.Now()
	t := Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  input.Description,
		DueDate:      input.DueDate,
		Priority:     types.ClampPriority(int(input.Priority)),
		Status:       types.StatusPending,
		PersonID:     input.PersonID,
		RelationType: input.RelationType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.Conn().ExecContext(ctx, `
INSERT INTO tasks (id, title, description, due_date, priority, status, person_id, relation_type, is_missed, missed_at, next_remind_at, remind_count, is_dismissed, completed_at, is_deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, 0, 0, NULL, 0, ?, ?)`,
		t.ID, t.Title, nullIfEmpty(t.Description), millisOrNil(t.DueDate), int(t.Priority), string(t.Status),
		nullIfEmpty(t.PersonID), nullIfEmpty(t.RelationType), millis(t.CreatedAt), millis(t.UpdatedAt))
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *TaskStore) GetAll(ctx context.Context) ([]Task, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE is_deleted = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (Task, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND is_deleted = 0`, id)
	return scanTask(row)
}

func (s *TaskStore) GetByPersonID(ctx context.Context, personID string) ([]Task, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE person_id = ? AND is_deleted = 0 ORDER BY created_at DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (s *TaskStore) Update(ctx context.Context, id string, input UpdateTask) (Task, error) {
	sets := make([]string, 0, 11)
	args := make([]interface{}, 0, 12)
	if input.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*input.Title))
	}
	if input.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullIfEmpty(*input.Description))
	}
	if input.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, millisOrNil(*input.DueDate))
	}
	if input.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, int(types.ClampPriority(int(*input.Priority))))
	}
	if input.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*input.Status))
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
	if input.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, millisOrNil(*input.CompletedAt))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, millis(time.Now()))
		args = append(args, id)
		query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND is_deleted = 0`
		if _, err := s.db.Conn().ExecContext(ctx, query, args...); err != nil {
			return Task{}, err
		}
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE tasks SET is_deleted = 1, updated_at = ? WHERE id = ?`, millis(time.Now()), id)
	return err
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t            Task
		dueDate      sql.NullInt64
		priority     int
		status       string
		isMissed     int
		missedAt     sql.NullInt64
		nextRemindAt sql.NullInt64
		isDismissed  int
		completedAt  sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &dueDate, &priority, &status, &t.PersonID, &t.RelationType,
		&isMissed, &missedAt, &nextRemindAt, &t.Missed.RemindCount, &isDismissed, &completedAt, &createdAt, &updatedAt); err != nil {
		return Task{}, err
	}
	t.DueDate = timeFromMillis(dueDate)
	t.Priority = types.Priority(priority)
	t.Status = types.TaskStatus(status)
	t.Missed.IsMissed = isMissed == 1
	t.Missed.MissedAt = timeFromMillis(missedAt)
	t.Missed.NextRemindAt = timeFromMillis(nextRemindAt)
	t.Missed.IsDismissed = isDismissed == 1
	t.CompletedAt = timeFromMillis(completedAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return t, nil
}
