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

type ReminderStore struct {
	db *DB
}

func NewReminderStore(db *DB) *ReminderStore {
	return &ReminderStore{db: db}
}

type CreateReminder struct {
	Title        string
	Description  string
	RemindAt     time.Time
	IsRecurring  bool
	Recurrence   string
	PersonID     string
	RelationType string
	Priority     types.Priority
}

type UpdateReminder struct {
	Title        *string
	RemindAt     *time.Time
	IsDone       *bool
	Priority     *types.Priority
	IsMissed     *bool
	MissedAt     *time.Time
	NextRemindAt *time.Time
	RemindCount  *int
	IsDismissed  *bool
}

const reminderColumns = `id, title, COALESCE(description, ''), remind_at, is_recurring, COALESCE(recurrence, ''), is_done,
	COALESCE(person_id, ''), COALESCE(relation_type, ''), priority, is_missed, missed_at, next_remind_at, remind_count, is_dismissed, created_at, updated_at`

func (s *ReminderStore) Create(ctx context.Context, input CreateReminder) (Reminder, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Reminder{}, fmt.Errorf("title is required")
	}
	if input.RemindAt.IsZero() {
		return Reminder{}, fmt.Errorf("remind time is required")
	}
	if input.IsRecurring && strings.TrimSpace(input.Recurrence) == "" {
		return Reminder{}, fmt.Errorf("recurrence is required for recurring reminders")
	}
	now := time.Now()
	r := Reminder{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  input.Description,
		RemindAt:     input.RemindAt,
		IsRecurring:  input.IsRecurring,
		Recurrence:   input.Recurrence,
		PersonID:     input.PersonID,
		RelationType: input.RelationType,
		Priority:     types.ClampPriority(int(input.Priority)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.Conn().ExecContext(ctx, `
INSERT INTO reminders (id, title, description, remind_at, is_recurring, recurrence, is_done, person_id, relation_type, priority, is_missed, missed_at, next_remind_at, remind_count, is_dismissed, is_deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, 0, NULL, NULL, 0, 0, 0, ?, ?)`,
		r.ID, r.Title, nullIfEmpty(r.Description), millis(r.RemindAt), boolToInt(r.IsRecurring), nullIfEmpty(r.Recurrence),
		nullIfEmpty(r.PersonID), nullIfEmpty(r.RelationType), int(r.Priority), millis(r.CreatedAt), millis(r.UpdatedAt))
	if err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (s *ReminderStore) GetAll(ctx context.Context) ([]Reminder, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE is_deleted = 0 ORDER BY remind_at ASC`)
}

func (s *ReminderStore) GetByID(ctx context.Context, id string) (Reminder, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND is_deleted = 0`, id)
	return scanReminder(row)
}

func (s *ReminderStore) GetByPersonID(ctx context.Context, personID string) ([]Reminder, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE person_id = ? AND is_deleted = 0 ORDER BY remind_at ASC`, personID)
}

func (s *ReminderStore) query(ctx context.Context, query string, args ...interface{}) ([]Reminder, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *ReminderStore) Update(ctx context.Context, id string, input UpdateReminder) (Reminder, error) {
	sets := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)
	if input.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*input.Title))
	}
	if input.RemindAt != nil {
		sets = append(sets, "remind_at = ?")
		args = append(args, millis(*input.RemindAt))
	}
	if input.IsDone != nil {
		sets = append(sets, "is_done = ?")
		args = append(args, boolToInt(*input.IsDone))
	}
	if input.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, int(types.ClampPriority(int(*input.Priority))))
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
		query := `UPDATE reminders SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND is_deleted = 0`
		if _, err := s.db.Conn().ExecContext(ctx, query, args...); err != nil {
			return Reminder{}, err
		}
	}
	return s.GetByID(ctx, id)
}

func (s *ReminderStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Conn().ExecContext(ctx, `UPDATE reminders SET is_deleted = 1, updated_at = ? WHERE id = ?`, millis(time.Now()), id)
	return err
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		r            Reminder
		remindAt     int64
		isRecurring  int
		isDone       int
		priority     int
		isMissed     int
		missedAt     sql.NullInt64
		nextRemindAt sql.NullInt64
		isDismissed  int
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &remindAt, &isRecurring, &r.Recurrence, &isDone,
		&r.PersonID, &r.RelationType, &priority, &isMissed, &missedAt, &nextRemindAt, &r.Missed.RemindCount,
		&isDismissed, &createdAt, &updatedAt); err != nil {
		return Reminder{}, err
	}
	r.RemindAt = time.UnixMilli(remindAt)
	r.IsRecurring = isRecurring == 1
	r.IsDone = isDone == 1
	r.Priority = types.Priority(priority)
	r.Missed.IsMissed = isMissed == 1
	r.Missed.MissedAt = timeFromMillis(missedAt)
	r.Missed.NextRemindAt = timeFromMillis(nextRemindAt)
	r.Missed.IsDismissed = isDismissed == 1
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return r, nil
}
