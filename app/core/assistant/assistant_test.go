package assistant

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	config "buddy/app/configs"
	"buddy/app/core/completion"
	"buddy/app/core/items"
	"buddy/app/core/missed"
	"buddy/app/core/notify"
	"buddy/app/core/store"
	"buddy/app/pkg/types"
)

type fakeCompletion struct {
	initialized bool
	reply       string
	err         error
	lastPrompt  string
}

func (f *fakeCompletion) Initialize(context.Context) error { return nil }
func (f *fakeCompletion) IsInitialized() bool              { return f.initialized }
func (f *fakeCompletion) IsLoading() bool                  { return false }
func (f *fakeCompletion) Release()                         {}

func (f *fakeCompletion) Complete(_ context.Context, msgs []completion.Message) (string, error) {
	if len(msgs) > 0 {
		f.lastPrompt = msgs[len(msgs)-1].Content
	}
	return f.reply, f.err
}

type env struct {
	svc      *Service
	exec     *Executor
	items    *items.Service
	chat     *store.ChatStore
	config   *store.NotificationConfigStore
	comp     *fakeCompletion
	detector *missed.Detector
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewSQLiteDB(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	notifStore, err := notify.NewStore(db.Conn())
	if err != nil {
		t.Fatalf("notify store: %v", err)
	}
	sched := notify.NewLocalScheduler(notifStore, notify.LogDeliverer{})

	cfg, err := config.NewManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	tasks := store.NewTaskStore(db)
	todos := store.NewTodoStore(db)
	reminders := store.NewReminderStore(db)
	people := store.NewPeopleStore(db)
	chat := store.NewChatStore(db)
	notifCfg := store.NewNotificationConfigStore(db)

	itemSvc := items.NewService(tasks, todos, reminders, people, sched)
	detector := missed.NewDetector(tasks, todos, reminders, notifCfg, sched)
	exec := NewExecutor(itemSvc, detector, notifCfg)
	prompts := NewPromptBuilder(cfg, people, tasks, todos, reminders, chat)
	comp := &fakeCompletion{initialized: true}

	return &env{
		svc:      NewService(chat, prompts, comp, exec),
		exec:     exec,
		items:    itemSvc,
		chat:     chat,
		config:   notifCfg,
		comp:     comp,
		detector: detector,
	}
}

func intentFor(action, data string) Intent {
	if data == "" {
		data = "{}"
	}
	return Intent{Intent: "TASK_INTENT", Action: action, Message: "ok", Data: data}
}

func TestExecutorCreatesTask(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour).UnixMilli()
	res := e.exec.Execute(ctx, intentFor("CREATE_TASK", fmt.Sprintf(`{"title":"Buy milk","priority":9,"due_date":%d}`, due)))
	if !res.Success {
		t.Fatalf("execute: %+v", res)
	}

	tasks, err := e.items.Tasks().GetAll(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Buy milk" {
		t.Fatalf("tasks: %+v", tasks)
	}
	if tasks[0].Priority != types.PriorityMedium {
		t.Fatalf("priority 9 should clamp to medium, got %d", tasks[0].Priority)
	}
	if tasks[0].DueDate.UnixMilli() != due {
		t.Fatalf("due = %v", tasks[0].DueDate)
	}
}

func TestExecutorRequiresIDs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []string{"UPDATE_PERSON", "DELETE_PERSON", "COMPLETE_TASK", "DELETE_TASK", "COMPLETE_TODO", "DELETE_TODO", "DELETE_REMINDER", "DISMISS_MISSED_ITEM"}
	for _, action := range cases {
		res := e.exec.Execute(ctx, intentFor(action, "{}"))
		if res.Success || res.Message == "" {
			t.Fatalf("%s without id: %+v", action, res)
		}
	}
}

func TestExecutorFoldsUseCaseErrors(t *testing.T) {
	e := newEnv(t)

	res := e.exec.Execute(context.Background(), intentFor("CREATE_TASK", `{"title":"   "}`))
	if res.Success {
		t.Fatal("blank title should fail")
	}
	if res.Message == "" {
		t.Fatal("failure should carry a message")
	}
}

func TestExecutorUnknownActionIsNoOp(t *testing.T) {
	e := newEnv(t)

	res := e.exec.Execute(context.Background(), intentFor("SNOOZE_MISSED_ITEM", `{"id":"x"}`))
	if !res.Success {
		t.Fatalf("unknown action must succeed: %+v", res)
	}
}

func TestExecutorCompleteTodoRollsRecurrence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	todo, err := e.items.AddTodo(ctx, items.AddTodoInput{Title: "Weekly review", IsRecurring: true, Recurrence: "weekly:1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res := e.exec.Execute(ctx, intentFor("COMPLETE_TODO", fmt.Sprintf(`{"id":%q}`, todo.ID)))
	if !res.Success {
		t.Fatalf("execute: %+v", res)
	}

	todos, err := e.items.Todos().GetAll(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(todos) != 1 || todos[0].ID == todo.ID || todos[0].IsCompleted {
		t.Fatalf("expected one fresh occurrence: %+v", todos)
	}
}

func TestExecutorDismissMissedItem(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	task, err := e.items.AddTask(ctx, items.AddTaskInput{Title: "File taxes", DueDate: time.Now().AddDate(0, 0, -3)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	res := e.exec.Execute(ctx, intentFor("DISMISS_MISSED_ITEM", fmt.Sprintf(`{"id":%q,"type":"task"}`, task.ID)))
	if !res.Success {
		t.Fatalf("execute: %+v", res)
	}
	got, err := e.items.Tasks().GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Missed.IsDismissed {
		t.Fatal("dismiss flag not set")
	}

	res = e.exec.Execute(ctx, intentFor("DISMISS_MISSED_ITEM", `{"id":"x","type":"note"}`))
	if res.Success {
		t.Fatal("unknown item type should fail")
	}
}

func TestExecutorUpdatesNotificationConfig(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.exec.Execute(ctx, intentFor("UPDATE_NOTIF_TIME", `{}`))
	if res.Success {
		t.Fatal("missing time should fail")
	}
	res = e.exec.Execute(ctx, intentFor("UPDATE_NOTIF_TIME", `{"time":"07:30"}`))
	if !res.Success {
		t.Fatalf("execute: %+v", res)
	}
	res = e.exec.Execute(ctx, intentFor("UPDATE_BIRTHDAY_THRESHOLD", `{"high_days":30,"low_days":1}`))
	if !res.Success {
		t.Fatalf("execute: %+v", res)
	}

	cfg, err := e.config.Get(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.DailyNotifTime != "07:30" || cfg.HighPriorityDays != 30 || cfg.LowPriorityDays != 1 {
		t.Fatalf("config not updated: %+v", cfg)
	}
	if cfg.MediumPriorityDays != 7 {
		t.Fatalf("untouched threshold changed: %d", cfg.MediumPriorityDays)
	}
}

func TestSendMessageModelNotReady(t *testing.T) {
	e := newEnv(t)
	e.comp.initialized = false
	ctx := context.Background()

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	turn, err := e.svc.SendMessage(ctx, sess.ID, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.AIMessage.MessageType != types.MessageError {
		t.Fatalf("reply type = %q, want error", turn.AIMessage.MessageType)
	}

	msgs, err := e.chat.SessionMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("turn persisted %d messages, want 2", len(msgs))
	}
}

func TestSendMessageConversationalTurn(t *testing.T) {
	e := newEnv(t)
	e.comp.reply = `{"intent":"CONVERSATION_INTENT","action":"GENERAL_CHAT","message":"Hi there!","data":{}}`
	ctx := context.Background()

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	turn, err := e.svc.SendMessage(ctx, sess.ID, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.AIMessage.MessageType != types.MessageText || turn.AIMessage.Message != "Hi there!" {
		t.Fatalf("reply: %+v", turn.AIMessage)
	}
	if turn.AIMessage.ActionType != "" {
		t.Fatalf("conversational reply should carry no action: %+v", turn.AIMessage)
	}
}

func TestSendMessageActionTurn(t *testing.T) {
	e := newEnv(t)
	e.comp.reply = `{"intent":"TASK_INTENT","action":"CREATE_TASK","message":"Added it!","data":{"title":"Buy milk"}}`
	ctx := context.Background()

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	turn, err := e.svc.SendMessage(ctx, sess.ID, "add a task to buy milk")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if turn.AIMessage.MessageType != types.MessageAction || turn.AIMessage.ActionType != "CREATE_TASK" {
		t.Fatalf("reply: %+v", turn.AIMessage)
	}
	payload := turn.AIMessage.ActionPayload
	if gjson.Get(payload, "title").String() != "Buy milk" || !gjson.Get(payload, "success").Bool() {
		t.Fatalf("payload = %s", payload)
	}

	tasks, err := e.items.Tasks().GetAll(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("task not created, got %d", len(tasks))
	}
}

func TestSendMessageMalformedModelOutput(t *testing.T) {
	e := newEnv(t)
	e.comp.reply = "I could not come up with JSON, sorry."
	ctx := context.Background()

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	turn, err := e.svc.SendMessage(ctx, sess.ID, "do the thing")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.AIMessage.MessageType != types.MessageText || turn.AIMessage.Message != fallbackMessage {
		t.Fatalf("reply: %+v", turn.AIMessage)
	}
}

func TestSendMessageCompletionFailure(t *testing.T) {
	e := newEnv(t)
	e.comp.err = fmt.Errorf("server gone")
	ctx := context.Background()

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	turn, err := e.svc.SendMessage(ctx, sess.ID, "hello")
	if err != nil {
		t.Fatalf("turn should complete despite completion failure: %v", err)
	}
	if turn.AIMessage.MessageType != types.MessageError || turn.AIMessage.Message != turnFailedMessage {
		t.Fatalf("reply: %+v", turn.AIMessage)
	}

	msgs, err := e.chat.SessionMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("turn persisted %d messages, want 2", len(msgs))
	}
}

func TestPromptIncludesDomainSnapshot(t *testing.T) {
	e := newEnv(t)
	e.comp.reply = `{"intent":"CONVERSATION_INTENT","action":"GENERAL_CHAT","message":"hi","data":{}}`
	ctx := context.Background()

	person, err := e.items.AddPerson(ctx, items.AddPersonInput{Name: "Maya", Relationship: "family"})
	if err != nil {
		t.Fatalf("person: %v", err)
	}
	if _, err := e.items.AddTask(ctx, items.AddTaskInput{Title: "Review deck", DueDate: time.Now(), PersonID: person.ID}); err != nil {
		t.Fatalf("task: %v", err)
	}
	if _, err := e.items.AddTask(ctx, items.AddTaskInput{Title: "File taxes", DueDate: time.Now().AddDate(0, 0, -3)}); err != nil {
		t.Fatalf("task: %v", err)
	}

	sess, err := e.svc.GetOrCreateTodaySession(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, err := e.svc.SendMessage(ctx, sess.ID, "what's up today?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	prompt := e.comp.lastPrompt
	for _, want := range []string{
		"Maya [id:" + person.ID + "]",
		"Review deck",
		"1 missed item(s): File taxes",
		"[USER MESSAGE]\nwhat's up today?",
		"Valid intents and actions:",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateDailySummaryFallsBackToCounts(t *testing.T) {
	e := newEnv(t)
	e.comp.initialized = false
	ctx := context.Background()

	if _, err := e.items.AddTodo(ctx, items.AddTodoInput{Title: "Water plants", DueDate: time.Now()}); err != nil {
		t.Fatalf("todo: %v", err)
	}

	text, err := e.svc.GenerateDailySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(text, "1 item due today") {
		t.Fatalf("summary = %q", text)
	}
}

func TestGenerateDailySummaryUsesModelWhenReady(t *testing.T) {
	e := newEnv(t)
	e.comp.reply = "Good morning! A calm day ahead."
	ctx := context.Background()

	text, err := e.svc.GenerateDailySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if text != "Good morning! A calm day ahead." {
		t.Fatalf("summary = %q", text)
	}
	if !strings.Contains(e.comp.lastPrompt, "daily summary greeting") {
		t.Fatalf("prompt = %q", e.comp.lastPrompt)
	}
}

