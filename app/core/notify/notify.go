// Package notify persists scheduled local notifications and delivers the due
// ones. Notification IDs are deterministic, so re-scheduling the same logical
// notification overwrites the pending row instead of stacking duplicates.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"buddy/app/pkg/logger"
)

var slog = logger.Scope("notify")

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

const maxDeliverAttempts = 3

type Notification struct {
	ID          string
	Title       string
	Body        string
	Payload     string // JSON blob describing the source item
	Status      string
	DeliverAt   time.Time
	Attempt     int
	LastError   string
	DeliveredAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Scheduler is the scheduling surface the rest of the app depends on.
type Scheduler interface {
	ScheduleAt(ctx context.Context, id string, at time.Time, title, body, payload string) error
	Cancel(ctx context.Context, id string) error
}

// Deliverer pushes one notification to the user-facing surface.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

type Store struct {
	conn *sql.DB
}

func NewStore(conn *sql.DB) (*Store, error) {
	if conn == nil {
		return nil, errors.New("notify store: db connection is required")
	}
	store := &Store{conn: conn}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL,
			deliver_at INTEGER NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			delivered_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status_deliver ON notifications(status, deliver_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("notify store: init schema: %w", err)
		}
	}
	return nil
}

// Upsert writes a pending notification, superseding any prior state for the
// same id. A later schedule reopens even a delivered row so a repeating id
// keeps firing; the one exception is a delivered row at the identical
// deliver_at, which stays terminal so a schedule racing its own dispatch
// cannot double-deliver the same occurrence.
func (s *Store) Upsert(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("notify store: id is required")
	}
	now := time.Now()
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO notifications(id, title, body, payload, status, deliver_at, attempt, last_error, delivered_at, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			payload = excluded.payload,
			status = excluded.status,
			deliver_at = excluded.deliver_at,
			attempt = 0,
			last_error = NULL,
			delivered_at = NULL,
			updated_at = excluded.updated_at
		WHERE notifications.status != ? OR notifications.deliver_at != excluded.deliver_at
	`, n.ID, n.Title, n.Body, nullIfEmpty(n.Payload), StatusPending, n.DeliverAt.UnixMilli(),
		now.UnixMilli(), now.UnixMilli(), StatusDelivered)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (Notification, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, body, COALESCE(payload, ''), status, deliver_at, attempt, COALESCE(last_error, ''), delivered_at, created_at, updated_at
		FROM notifications WHERE id = ?
	`, id)
	return scanNotification(row)
}

func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, body, COALESCE(payload, ''), status, deliver_at, attempt, COALESCE(last_error, ''), delivered_at, created_at, updated_at
		FROM notifications
		WHERE status = ? AND deliver_at <= ?
		ORDER BY deliver_at ASC
		LIMIT ?
	`, StatusPending, now.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE notifications SET status = ?, delivered_at = ?, last_error = NULL, updated_at = ?
		WHERE id = ?
	`, StatusDelivered, at.UnixMilli(), time.Now().UnixMilli(), id)
	return err
}

// MarkFailure records a delivery failure. The row stays pending until the
// retry attempts run out.
func (s *Store) MarkFailure(ctx context.Context, id string, attempt int, errText string) error {
	status := StatusPending
	if attempt >= maxDeliverAttempts {
		status = StatusFailed
	}
	_, err := s.conn.ExecContext(ctx, `
		UPDATE notifications SET status = ?, attempt = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, status, attempt, nullIfEmpty(errText), time.Now().UnixMilli(), id)
	return err
}

func (s *Store) CancelPending(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE notifications SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusCanceled, time.Now().UnixMilli(), id, StatusPending)
	return err
}

func scanNotification(row interface{ Scan(...interface{}) error }) (Notification, error) {
	var (
		n           Notification
		deliverAt   int64
		deliveredAt sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Body, &n.Payload, &n.Status, &deliverAt, &n.Attempt,
		&n.LastError, &deliveredAt, &createdAt, &updatedAt); err != nil {
		return Notification{}, err
	}
	n.DeliverAt = time.UnixMilli(deliverAt)
	if deliveredAt.Valid {
		n.DeliveredAt = time.UnixMilli(deliveredAt.Int64)
	}
	n.CreatedAt = time.UnixMilli(createdAt)
	n.UpdatedAt = time.UnixMilli(updatedAt)
	return n, nil
}

func nullIfEmpty(v string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// LocalScheduler is the sqlite-backed Scheduler plus the dispatch loop body.
type LocalScheduler struct {
	store     *Store
	deliverer Deliverer
	batchSize int

	runMu   sync.Mutex
	running map[string]struct{}
}

func NewLocalScheduler(store *Store, deliverer Deliverer) *LocalScheduler {
	return &LocalScheduler{
		store:     store,
		deliverer: deliverer,
		batchSize: 20,
		running:   map[string]struct{}{},
	}
}

func (l *LocalScheduler) SetBatchSize(n int) {
	if n > 0 {
		l.batchSize = n
	}
}

func (l *LocalScheduler) ScheduleAt(ctx context.Context, id string, at time.Time, title, body, payload string) error {
	return l.store.Upsert(ctx, Notification{
		ID:        id,
		Title:     title,
		Body:      body,
		Payload:   payload,
		Status:    StatusPending,
		DeliverAt: at,
	})
}

func (l *LocalScheduler) Cancel(ctx context.Context, id string) error {
	return l.store.CancelPending(ctx, id)
}

// DispatchDue delivers everything due right now. Each notification runs in
// its own goroutine; the running map keeps overlapping dispatch ticks from
// double-delivering.
func (l *LocalScheduler) DispatchDue(ctx context.Context) {
	due, err := l.store.ListDue(ctx, time.Now(), l.batchSize)
	if err != nil {
		slog.Error("List due notifications: %v", err)
		return
	}
	for _, n := range due {
		n := n
		if !l.markRunning(n.ID) {
			continue
		}
		go func() {
			defer l.unmarkRunning(n.ID)
			l.deliverOne(ctx, n)
		}()
	}
}

func (l *LocalScheduler) deliverOne(ctx context.Context, n Notification) {
	fresh, err := l.store.Get(ctx, n.ID)
	if err != nil || fresh.Status != StatusPending || fresh.DeliverAt.After(time.Now()) {
		return
	}

	attempt := fresh.Attempt + 1
	if err := l.deliverer.Deliver(ctx, fresh); err != nil {
		slog.Error("Deliver notification %s (attempt %d): %v", fresh.ID, attempt, err)
		if err := l.store.MarkFailure(ctx, fresh.ID, attempt, err.Error()); err != nil {
			slog.Error("Record notification failure %s: %v", fresh.ID, err)
		}
		return
	}
	if err := l.store.MarkDelivered(ctx, fresh.ID, time.Now()); err != nil {
		slog.Error("Mark notification delivered %s: %v", fresh.ID, err)
	}
}

func (l *LocalScheduler) markRunning(id string) bool {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if _, ok := l.running[id]; ok {
		return false
	}
	l.running[id] = struct{}{}
	return true
}

func (l *LocalScheduler) unmarkRunning(id string) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	delete(l.running, id)
}

// LogDeliverer prints notifications to the process log. It is the delivery
// surface for the terminal build, where there is no OS notification center.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, n Notification) error {
	slog.Info("%s: %s", n.Title, n.Body)
	return nil
}
