// Package assistant glues the chat pipeline together: prompt building,
// completion, intent parsing and action dispatch, with every turn persisted
// to the chat store.
package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"buddy/app/core/completion"
	"buddy/app/core/store"
	"buddy/app/pkg/logger"
	"buddy/app/pkg/types"
)

const (
	modelNotReadyMessage = "The model is not loaded yet. Please wait while it initializes."
	turnFailedMessage    = "Something went wrong. Please try again."
)

// Turn is the persisted outcome of one SendMessage call.
type Turn struct {
	UserMessage store.ChatMessage
	AIMessage   store.ChatMessage
}

type Service struct {
	chat       *store.ChatStore
	prompts    *PromptBuilder
	completion completion.Service
	executor   *Executor
}

func NewService(chat *store.ChatStore, prompts *PromptBuilder, comp completion.Service, executor *Executor) *Service {
	return &Service{
		chat:       chat,
		prompts:    prompts,
		completion: comp,
		executor:   executor,
	}
}

// GetOrCreateTodaySession returns today's daily chat session, creating it on
// the first message of the day.
func (s *Service) GetOrCreateTodaySession(ctx context.Context) (store.ChatSession, error) {
	return s.chat.GetOrCreateDaily(ctx, time.Now())
}

// SendMessage runs one chat turn. Whatever happens after the user's message
// is stored, the turn completes with exactly one assistant message: a text
// or action reply on success, an error-typed message otherwise.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (Turn, error) {
	userMsg, err := s.chat.CreateMessage(ctx, store.CreateMessage{
		SessionID:   sessionID,
		Sender:      types.SenderUser,
		Message:     text,
		MessageType: types.MessageText,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("persist user message: %w", err)
	}

	if !s.completion.IsInitialized() {
		aiMsg, err := s.chat.CreateMessage(ctx, store.CreateMessage{
			SessionID:   sessionID,
			Sender:      types.SenderAI,
			Message:     modelNotReadyMessage,
			MessageType: types.MessageError,
		})
		if err != nil {
			return Turn{}, fmt.Errorf("persist assistant message: %w", err)
		}
		return Turn{UserMessage: userMsg, AIMessage: aiMsg}, nil
	}

	reply := s.runTurn(ctx, sessionID, text)
	aiMsg, err := s.chat.CreateMessage(ctx, reply)
	if err != nil {
		return Turn{}, fmt.Errorf("persist assistant message: %w", err)
	}
	return Turn{UserMessage: userMsg, AIMessage: aiMsg}, nil
}

// runTurn produces the assistant reply for an initialized model. It never
// fails: model, parse and dispatch problems all collapse into an error-typed
// message.
func (s *Service) runTurn(ctx context.Context, sessionID, text string) (reply store.CreateMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Chat turn panic: %v", r)
			reply = errorReply(sessionID)
		}
	}()

	prompt, err := s.prompts.Build(ctx, sessionID, text)
	if err != nil {
		logger.Error("Build prompt: %v", err)
		return errorReply(sessionID)
	}

	raw, err := s.completion.Complete(ctx, []completion.Message{{Role: completion.RoleUser, Content: prompt}})
	if err != nil {
		logger.Error("Completion: %v", err)
		return errorReply(sessionID)
	}

	intent := ParseIntent(raw)
	if intent.ConversationalOnly() {
		return store.CreateMessage{
			SessionID:   sessionID,
			Sender:      types.SenderAI,
			Message:     intent.Message,
			MessageType: types.MessageText,
		}
	}

	result := s.executor.Execute(ctx, intent)
	payload, err := sjson.Set(intent.Data, "success", result.Success)
	if err != nil {
		payload = intent.Data
	}
	return store.CreateMessage{
		SessionID:     sessionID,
		Sender:        types.SenderAI,
		Message:       intent.Message,
		MessageType:   types.MessageAction,
		ActionType:    intent.Action,
		ActionPayload: payload,
	}
}

func errorReply(sessionID string) store.CreateMessage {
	return store.CreateMessage{
		SessionID:   sessionID,
		Sender:      types.SenderAI,
		Message:     turnFailedMessage,
		MessageType: types.MessageError,
	}
}

// GenerateDailySummary produces the morning greeting. When the model is
// unavailable or fails, a static counts-based summary is returned instead,
// so the caller always gets something to show.
func (s *Service) GenerateDailySummary(ctx context.Context) (string, error) {
	if !s.completion.IsInitialized() {
		return s.staticDailySummary(ctx)
	}

	prompt, err := s.prompts.DailySummary(ctx)
	if err != nil {
		return s.staticDailySummary(ctx)
	}
	text, err := s.completion.Complete(ctx, []completion.Message{{Role: completion.RoleUser, Content: prompt}})
	if err != nil {
		logger.Error("Daily summary completion: %v", err)
		return s.staticDailySummary(ctx)
	}
	return text, nil
}

func (s *Service) staticDailySummary(ctx context.Context) (string, error) {
	b := s.prompts
	snap, err := b.loadSnapshot(ctx, "", 0)
	if err != nil {
		return "", fmt.Errorf("load summary snapshot: %w", err)
	}

	now := b.now()
	dayStart := startOfDay(now)
	dayEnd := dayStart.AddDate(0, 0, 1)

	dueToday := 0
	for _, t := range snap.tasks {
		if inWindow(t.DueDate, dayStart, dayEnd) && t.Status != types.StatusDone && t.Status != types.StatusDismissed {
			dueToday++
		}
	}
	for _, t := range snap.todos {
		if inWindow(t.DueDate, dayStart, dayEnd) && !t.IsCompleted {
			dueToday++
		}
	}
	for _, r := range snap.reminders {
		if inWindow(r.RemindAt, dayStart, dayEnd) && !r.IsDone {
			dueToday++
		}
	}
	missedCount := len(missedTasks(snap.tasks, dayStart)) +
		len(missedTodos(snap.todos, dayStart)) +
		len(missedReminders(snap.reminders, now))

	parts := make([]string, 0, 3)
	if dueToday > 0 {
		parts = append(parts, fmt.Sprintf("%d item%s due today", dueToday, plural(dueToday)))
	}
	if missedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d missed item%s", missedCount, plural(missedCount)))
	}
	cfg := b.cfg.Get()
	for _, p := range snap.people {
		days, ok := daysUntilBirthday(p.Birthday, now)
		if !ok || days > cfg.Assistant.BirthdayWindow {
			continue
		}
		if days == 0 {
			parts = append(parts, fmt.Sprintf("%s's birthday is today!", p.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%s's birthday in %d day%s", p.Name, days, plural(days)))
		}
		break
	}
	if len(parts) == 0 {
		return "Nothing due today. Great job!", nil
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += " - " + p
	}
	return out, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
