package types

// Priority orders people and scheduled items. Lower value means more urgent.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "Medium"
	}
}

// ClampPriority maps any numeric priority to the closed {High, Medium, Low}
// set, defaulting to Medium for unrecognized values.
func ClampPriority(n int) Priority {
	switch Priority(n) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(n)
	default:
		return PriorityMedium
	}
}

// ItemKind identifies one of the three schedulable item kinds.
type ItemKind string

const (
	KindTask     ItemKind = "task"
	KindTodo     ItemKind = "todo"
	KindReminder ItemKind = "reminder"
)

func ValidKind(kind string) bool {
	switch ItemKind(kind) {
	case KindTask, KindTodo, KindReminder:
		return true
	}
	return false
}

// TaskStatus is the task lifecycle state persisted on the tasks table.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusMissed     TaskStatus = "missed"
	StatusDismissed  TaskStatus = "dismissed"
)

// Relationship classifies how a person relates to the user.
type Relationship string

const (
	RelationFamily  Relationship = "family"
	RelationCollege Relationship = "college"
	RelationSchool  Relationship = "school"
	RelationOffice  Relationship = "office"
	RelationOther   Relationship = "other"
	RelationCustom  Relationship = "custom"
)

func NormalizeRelationship(s string) Relationship {
	switch Relationship(s) {
	case RelationFamily, RelationCollege, RelationSchool, RelationOffice, RelationCustom:
		return Relationship(s)
	default:
		return RelationOther
	}
}

// MessageSender identifies who produced a chat message.
type MessageSender string

const (
	SenderUser   MessageSender = "user"
	SenderAI     MessageSender = "ai"
	SenderSystem MessageSender = "system"
)

// MessageType classifies a chat message for rendering and audit.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageAction  MessageType = "action"
	MessageSummary MessageType = "summary"
	MessageError   MessageType = "error"
)
