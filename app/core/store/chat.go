package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"buddy/app/pkg/types"
)

type ChatStore struct {
	db *DB
}

func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// DateKey formats t the way session rows are keyed.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *ChatStore) GetSessionByDate(ctx context.Context, date string) (ChatSession, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
SELECT id, session_date, COALESCE(title, ''), COALESCE(summary, ''), is_daily, created_at, updated_at
FROM chat_sessions WHERE session_date = ? AND is_daily = 1`, date)
	return scanSession(row)
}

// GetOrCreateDaily returns the daily session for the given day, creating it on
// first use.
func (s *ChatStore) GetOrCreateDaily(ctx context.Context, day time.Time) (ChatSession, error) {
	date := DateKey(day)
	sess, err := s.GetSessionByDate(ctx, date)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ChatSession{}, err
	}
	now := time.Now()
	sess = ChatSession{
		ID:          uuid.NewString(),
		SessionDate: date,
		Title:       "Chat " + date,
		IsDaily:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.Conn().ExecContext(ctx, `
INSERT INTO chat_sessions (id, session_date, title, summary, is_daily, created_at, updated_at)
VALUES (?, ?, ?, NULL, 1, ?, ?)`,
		sess.ID, sess.SessionDate, sess.Title, millis(sess.CreatedAt), millis(sess.UpdatedAt))
	if err != nil {
		return ChatSession{}, err
	}
	return sess, nil
}

func (s *ChatStore) UpdateSessionSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.db.Conn().ExecContext(ctx, `
UPDATE chat_sessions SET summary = ?, updated_at = ? WHERE id = ?`,
		nullIfEmpty(summary), millis(time.Now()), sessionID)
	return err
}

type CreateMessage struct {
	SessionID     string
	Sender        types.MessageSender
	Message       string
	MessageType   types.MessageType
	ActionType    string
	ActionPayload string
}

func (s *ChatStore) CreateMessage(ctx context.Context, input CreateMessage) (ChatMessage, error) {
	msgType := input.MessageType
	if msgType == "" {
		msgType = types.MessageText
	}
	m := ChatMessage{
		ID:            uuid.NewString(),
		SessionID:     input.SessionID,
		Sender:        input.Sender,
		Message:       input.Message,
		MessageType:   msgType,
		ActionType:    input.ActionType,
		ActionPayload: input.ActionPayload,
		CreatedAt:     time.Now(),
	}
	_, err := s.db.Conn().ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, sender, message, message_type, action_type, action_payload, is_processed, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.SessionID, string(m.Sender), m.Message, string(m.MessageType),
		nullIfEmpty(m.ActionType), nullIfEmpty(m.ActionPayload), millis(m.CreatedAt))
	if err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}

// RecentMessages returns the last limit messages of a session in
// chronological order.
func (s *ChatStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return []ChatMessage{}, nil
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
SELECT id, session_id, sender, message, message_type, COALESCE(action_type, ''), COALESCE(action_payload, ''), is_processed, created_at
FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse into oldest-first order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *ChatStore) SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
SELECT id, session_id, sender, message, message_type, COALESCE(action_type, ''), COALESCE(action_payload, ''), is_processed, created_at
FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanSession(row rowScanner) (ChatSession, error) {
	var (
		sess      ChatSession
		isDaily   int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&sess.ID, &sess.SessionDate, &sess.Title, &sess.Summary, &isDaily, &createdAt, &updatedAt); err != nil {
		return ChatSession{}, err
	}
	sess.IsDaily = isDaily == 1
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	return sess, nil
}

func scanMessage(row rowScanner) (ChatMessage, error) {
	var (
		m           ChatMessage
		sender      string
		msgType     string
		isProcessed int
		createdAt   int64
	)
	if err := row.Scan(&m.ID, &m.SessionID, &sender, &m.Message, &msgType, &m.ActionType, &m.ActionPayload, &isProcessed, &createdAt); err != nil {
		return ChatMessage{}, err
	}
	m.Sender = types.MessageSender(strings.ToLower(sender))
	m.MessageType = types.MessageType(msgType)
	m.IsProcessed = isProcessed == 1
	m.CreatedAt = time.UnixMilli(createdAt)
	return m, nil
}
