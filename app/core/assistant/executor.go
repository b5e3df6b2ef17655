package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"buddy/app/core/items"
	"buddy/app/core/missed"
	"buddy/app/core/store"
	"buddy/app/pkg/types"
)

// ActionResult is the executor's verdict on one intent. A false Success is a
// reported condition, not an error: the chat turn still completes.
type ActionResult struct {
	Success bool
	Message string
}

// Executor maps validated intents onto entity use cases. It never returns a
// Go error and never panics outward; every failure is folded into the
// result.
type Executor struct {
	items    *items.Service
	detector *missed.Detector
	config   *store.NotificationConfigStore
}

func NewExecutor(items *items.Service, detector *missed.Detector, config *store.NotificationConfigStore) *Executor {
	return &Executor{items: items, detector: detector, config: config}
}

func (e *Executor) Execute(ctx context.Context, intent Intent) (result ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ActionResult{Success: false, Message: fmt.Sprint(r)}
		}
	}()

	d := gjson.Parse(intent.Data)
	var err error
	switch intent.Action {
	case "CREATE_PERSON":
		_, err = e.items.AddPerson(ctx, items.AddPersonInput{
			Name:           d.Get("name").String(),
			Relationship:   d.Get("relationship_type").String(),
			CustomRelation: d.Get("custom_relation").String(),
			Priority:       toPriority(d.Get("priority")),
			Birthday:       d.Get("birthday").String(),
			Phone:          d.Get("phone").String(),
			Notes:          d.Get("notes").String(),
		})

	case "UPDATE_PERSON":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Person ID required"}
		}
		update := store.UpdatePerson{}
		if v := d.Get("name"); v.Exists() {
			name := v.String()
			update.Name = &name
		}
		if v := d.Get("priority"); v.Exists() {
			p := toPriority(v)
			update.Priority = &p
		}
		if v := d.Get("birthday"); v.Exists() {
			bd := v.String()
			update.Birthday = &bd
		}
		if v := d.Get("phone"); v.Exists() {
			phone := v.String()
			update.Phone = &phone
		}
		if v := d.Get("notes"); v.Exists() {
			notes := v.String()
			update.Notes = &notes
		}
		_, err = e.items.UpdatePerson(ctx, id, update)

	case "DELETE_PERSON":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Person ID required"}
		}
		err = e.items.DeletePerson(ctx, id)

	case "CREATE_TASK":
		_, err = e.items.AddTask(ctx, items.AddTaskInput{
			Title:       d.Get("title").String(),
			Description: d.Get("description").String(),
			DueDate:     toTime(d.Get("due_date")),
			Priority:    toPriority(d.Get("priority")),
			PersonID:    d.Get("person_id").String(),
		})

	case "COMPLETE_TASK":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Task ID required"}
		}
		_, err = e.items.CompleteTask(ctx, id)

	case "DELETE_TASK":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Task ID required"}
		}
		err = e.items.DeleteTask(ctx, id)

	case "CREATE_TODO":
		_, err = e.items.AddTodo(ctx, items.AddTodoInput{
			Title:       d.Get("title").String(),
			Priority:    toPriority(d.Get("priority")),
			DueDate:     toTime(d.Get("due_date")),
			PersonID:    d.Get("person_id").String(),
			IsRecurring: d.Get("is_recurring").Bool(),
			Recurrence:  d.Get("recurrence").String(),
		})

	case "COMPLETE_TODO":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Todo ID required"}
		}
		_, err = e.items.ToggleTodo(ctx, id)

	case "DELETE_TODO":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Todo ID required"}
		}
		err = e.items.DeleteTodo(ctx, id)

	case "CREATE_REMINDER":
		remindAt := toTime(d.Get("remind_at"))
		if remindAt.IsZero() && !d.Get("is_recurring").Bool() {
			remindAt = time.Now().Add(time.Hour)
		}
		_, err = e.items.AddReminder(ctx, items.AddReminderInput{
			Title:       d.Get("title").String(),
			Description: d.Get("description").String(),
			RemindAt:    remindAt,
			Priority:    toPriority(d.Get("priority")),
			IsRecurring: d.Get("is_recurring").Bool(),
			Recurrence:  d.Get("recurrence").String(),
			PersonID:    d.Get("person_id").String(),
		})

	case "DELETE_REMINDER":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Reminder ID required"}
		}
		err = e.items.DeleteReminder(ctx, id)

	case "DISMISS_MISSED_ITEM":
		id, ok := requireID(d)
		if !ok {
			return ActionResult{Success: false, Message: "Item ID required"}
		}
		kind := types.ItemKind(d.Get("type").String())
		if !types.ValidKind(string(kind)) {
			return ActionResult{Success: false, Message: fmt.Sprintf("Unknown item type: %s", kind)}
		}
		err = e.detector.Dismiss(ctx, kind, id)

	case "UPDATE_NOTIF_TIME":
		v := d.Get("time")
		if !v.Exists() || strings.TrimSpace(v.String()) == "" {
			return ActionResult{Success: false, Message: "time is required"}
		}
		t := v.String()
		_, err = e.config.Update(ctx, store.UpdateNotificationConfig{DailyNotifTime: &t})

	case "UPDATE_BIRTHDAY_THRESHOLD":
		update := store.UpdateNotificationConfig{}
		if v := d.Get("high_days"); v.Exists() {
			n := int(v.Int())
			update.HighPriorityDays = &n
		}
		if v := d.Get("medium_days"); v.Exists() {
			n := int(v.Int())
			update.MediumPriorityDays = &n
		}
		if v := d.Get("low_days"); v.Exists() {
			n := int(v.Int())
			update.LowPriorityDays = &n
		}
		_, err = e.config.Update(ctx, update)

	case "TOGGLE_NOTIFICATIONS":
		enabled := d.Get("enabled").Bool()
		_, err = e.config.Update(ctx, store.UpdateNotificationConfig{
			DailyNotifEnabled:    &enabled,
			BirthdayNotifEnabled: &enabled,
			TaskNotifEnabled:     &enabled,
			ReminderNotifEnabled: &enabled,
			MissedNotifEnabled:   &enabled,
		})

	default:
		// Unknown action tags are a successful no-op, so a newer model
		// vocabulary cannot break the chat turn.
		return ActionResult{Success: true}
	}

	if err != nil {
		return ActionResult{Success: false, Message: err.Error()}
	}
	return ActionResult{Success: true}
}

func requireID(d gjson.Result) (string, bool) {
	id := d.Get("id").String()
	return id, id != ""
}

// toPriority clamps any model-supplied priority value to the known set,
// defaulting to medium.
func toPriority(v gjson.Result) types.Priority {
	return types.ClampPriority(int(v.Int()))
}

// toTime reads a unix-millis timestamp field; absent or non-numeric values
// map to the zero time.
func toTime(v gjson.Result) time.Time {
	if !v.Exists() || v.Int() <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.Int())
}
