package store

import (
	"database/sql"
	"time"

	"buddy/app/pkg/types"
)

// MissedState is the escalation block shared by tasks, todos and reminders.
// RemindCount only ever increases; IsDismissed is terminal.
type MissedState struct {
	IsMissed     bool
	MissedAt     time.Time
	NextRemindAt time.Time
	RemindCount  int
	IsDismissed  bool
}

type Person struct {
	ID             string
	Name           string
	Relationship   types.Relationship
	CustomRelation string
	Priority       types.Priority
	Birthday       string // "YYYY-MM-DD", empty when unknown
	Phone          string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Task struct {
	ID           string
	Title        string
	Description  string
	DueDate      time.Time // zero when unscheduled
	Priority     types.Priority
	Status       types.TaskStatus
	PersonID     string
	RelationType string
	Missed       MissedState
	CompletedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Todo struct {
	ID           string
	Title        string
	IsCompleted  bool
	Priority     types.Priority
	PersonID     string
	RelationType string
	DueDate      time.Time
	IsRecurring  bool
	Recurrence   string
	Missed       MissedState
	CompletedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Reminder struct {
	ID           string
	Title        string
	Description  string
	RemindAt     time.Time
	IsRecurring  bool
	Recurrence   string
	IsDone       bool
	PersonID     string
	RelationType string
	Priority     types.Priority
	Missed       MissedState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ChatSession struct {
	ID          string
	SessionDate string // "YYYY-MM-DD"
	Title       string
	Summary     string
	IsDaily     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ChatMessage struct {
	ID            string
	SessionID     string
	Sender        types.MessageSender
	Message       string
	MessageType   types.MessageType
	ActionType    string
	ActionPayload string
	IsProcessed   bool
	CreatedAt     time.Time
}

// NotificationConfig is a singleton row created with defaults on first access.
type NotificationConfig struct {
	ID                    string
	DailyNotifTime        string
	DailyNotifEnabled     bool
	BirthdayNotifEnabled  bool
	TaskNotifEnabled      bool
	ReminderNotifEnabled  bool
	MissedNotifEnabled    bool
	HighPriorityDays      int
	MediumPriorityDays    int
	LowPriorityDays       int
	MissedHighInterval    int
	MissedMediumInterval  int
	MissedLowInterval     int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// MissedInterval returns the configured re-notify interval for a priority
// tier, in days.
func (c NotificationConfig) MissedInterval(p types.Priority) int {
	switch p {
	case types.PriorityHigh:
		return c.MissedHighInterval
	case types.PriorityMedium:
		return c.MissedMediumInterval
	default:
		return c.MissedLowInterval
	}
}

func defaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		DailyNotifTime:       "09:00",
		DailyNotifEnabled:    true,
		BirthdayNotifEnabled: true,
		TaskNotifEnabled:     true,
		ReminderNotifEnabled: true,
		MissedNotifEnabled:   true,
		HighPriorityDays:     14,
		MediumPriorityDays:   7,
		LowPriorityDays:      2,
		MissedHighInterval:   1,
		MissedMediumInterval: 2,
		MissedLowInterval:    7,
	}
}

// Zero time maps to NULL in storage; all timestamps persist as unix millis.

func millisOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func timeFromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
