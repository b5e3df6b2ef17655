package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type NotificationConfigStore struct {
	db *DB
}

func NewNotificationConfigStore(db *DB) *NotificationConfigStore {
	return &NotificationConfigStore{db: db}
}

const notifConfigColumns = `id, daily_notif_time, daily_notif_enabled, birthday_notif_enabled, task_notif_enabled,
	reminder_notif_enabled, missed_notif_enabled, high_priority_days, medium_priority_days, low_priority_days,
	missed_high_interval, missed_medium_interval, missed_low_interval, created_at, updated_at`

// Get returns the notification config, seeding the singleton row with
// defaults on first access.
func (s *NotificationConfigStore) Get(ctx context.Context) (NotificationConfig, error) {
	row := s.db.Conn().QueryRowContext(ctx, `SELECT `+notifConfigColumns+` FROM notification_config LIMIT 1`)
	cfg, err := scanNotifConfig(row)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return NotificationConfig{}, err
	}

	cfg = defaultNotificationConfig()
	cfg.ID = uuid.NewString()
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	_, err = s.db.Conn().ExecContext(ctx, `
INSERT INTO notification_config (id, daily_notif_time, daily_notif_enabled, birthday_notif_enabled, task_notif_enabled,
	reminder_notif_enabled, missed_notif_enabled, high_priority_days, medium_priority_days, low_priority_days,
	missed_high_interval, missed_medium_interval, missed_low_interval, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.DailyNotifTime, boolToInt(cfg.DailyNotifEnabled), boolToInt(cfg.BirthdayNotifEnabled),
		boolToInt(cfg.TaskNotifEnabled), boolToInt(cfg.ReminderNotifEnabled), boolToInt(cfg.MissedNotifEnabled),
		cfg.HighPriorityDays, cfg.MediumPriorityDays, cfg.LowPriorityDays,
		cfg.MissedHighInterval, cfg.MissedMediumInterval, cfg.MissedLowInterval,
		millis(cfg.CreatedAt), millis(cfg.UpdatedAt))
	if err != nil {
		return NotificationConfig{}, err
	}
	return cfg, nil
}

type UpdateNotificationConfig struct {
	DailyNotifTime       *string
	DailyNotifEnabled    *bool
	BirthdayNotifEnabled *bool
	TaskNotifEnabled     *bool
	ReminderNotifEnabled *bool
	MissedNotifEnabled   *bool
	HighPriorityDays     *int
	MediumPriorityDays   *int
	LowPriorityDays      *int
}

func (s *NotificationConfigStore) Update(ctx context.Context, input UpdateNotificationConfig) (NotificationConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return NotificationConfig{}, err
	}
	if input.DailyNotifTime != nil {
		cfg.DailyNotifTime = *input.DailyNotifTime
	}
	if input.DailyNotifEnabled != nil {
		cfg.DailyNotifEnabled = *input.DailyNotifEnabled
	}
	if input.BirthdayNotifEnabled != nil {
		cfg.BirthdayNotifEnabled = *input.BirthdayNotifEnabled
	}
	if input.TaskNotifEnabled != nil {
		cfg.TaskNotifEnabled = *input.TaskNotifEnabled
	}
	if input.ReminderNotifEnabled != nil {
		cfg.ReminderNotifEnabled = *input.ReminderNotifEnabled
	}
	if input.MissedNotifEnabled != nil {
		cfg.MissedNotifEnabled = *input.MissedNotifEnabled
	}
	if input.HighPriorityDays != nil {
		cfg.HighPriorityDays = *input.HighPriorityDays
	}
	if input.MediumPriorityDays != nil {
		cfg.MediumPriorityDays = *input.MediumPriorityDays
	}
	if input.LowPriorityDays != nil {
		cfg.LowPriorityDays = *input.LowPriorityDays
	}
	cfg.UpdatedAt = time.Now()
	_, err = s.db.Conn().ExecContext(ctx, `
UPDATE notification_config SET daily_notif_time = ?, daily_notif_enabled = ?, birthday_notif_enabled = ?,
	task_notif_enabled = ?, reminder_notif_enabled = ?, missed_notif_enabled = ?,
	high_priority_days = ?, medium_priority_days = ?, low_priority_days = ?, updated_at = ?
WHERE id = ?`,
		cfg.DailyNotifTime, boolToInt(cfg.DailyNotifEnabled), boolToInt(cfg.BirthdayNotifEnabled),
		boolToInt(cfg.TaskNotifEnabled), boolToInt(cfg.ReminderNotifEnabled), boolToInt(cfg.MissedNotifEnabled),
		cfg.HighPriorityDays, cfg.MediumPriorityDays, cfg.LowPriorityDays,
		millis(cfg.UpdatedAt), cfg.ID)
	if err != nil {
		return NotificationConfig{}, err
	}
	return cfg, nil
}

func scanNotifConfig(row rowScanner) (NotificationConfig, error) {
	var (
		cfg       NotificationConfig
		daily     int
		birthday  int
		task      int
		reminder  int
		missed    int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&cfg.ID, &cfg.DailyNotifTime, &daily, &birthday, &task, &reminder, &missed,
		&cfg.HighPriorityDays, &cfg.MediumPriorityDays, &cfg.LowPriorityDays,
		&cfg.MissedHighInterval, &cfg.MissedMediumInterval, &cfg.MissedLowInterval,
		&createdAt, &updatedAt); err != nil {
		return NotificationConfig{}, err
	}
	cfg.DailyNotifEnabled = daily == 1
	cfg.BirthdayNotifEnabled = birthday == 1
	cfg.TaskNotifEnabled = task == 1
	cfg.ReminderNotifEnabled = reminder == 1
	cfg.MissedNotifEnabled = missed == 1
	cfg.CreatedAt = time.UnixMilli(createdAt)
	cfg.UpdatedAt = time.UnixMilli(updatedAt)
	return cfg, nil
}
