package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"buddy/app/core/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db.Conn())
	if err != nil {
		t.Fatalf("notify store: %v", err)
	}
	return s
}

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
	failWith  error
}

func (d *recordingDeliverer) Deliver(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.delivered = append(d.delivered, n.ID)
	return nil
}

func (d *recordingDeliverer) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

func TestUpsertReplacesPendingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour)

	if err := s.Upsert(ctx, Notification{ID: "missed-task-1", Title: "old", Body: "b", DeliverAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	later := at.Add(24 * time.Hour)
	if err := s.Upsert(ctx, Notification{ID: "missed-task-1", Title: "new", Body: "b", DeliverAt: later}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.Get(ctx, "missed-task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Title != "new" || n.DeliverAt.UnixMilli() != later.UnixMilli() {
		t.Fatalf("pending row not replaced: %+v", n)
	}
	if n.Status != StatusPending {
		t.Fatalf("status = %q", n.Status)
	}
}

func TestUpsertReopensDeliveredAtLaterTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.Now()

	if err := s.Upsert(ctx, Notification{ID: "n1", Title: "t", Body: "b", DeliverAt: first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkDelivered(ctx, "n1", first); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	second := first.Add(time.Hour)
	if err := s.Upsert(ctx, Notification{ID: "n1", Title: "again", Body: "b", DeliverAt: second}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != StatusPending || n.Title != "again" {
		t.Fatalf("delivered row not superseded by later schedule: %+v", n)
	}
	if n.DeliverAt.UnixMilli() != second.UnixMilli() {
		t.Fatalf("deliver at = %v, want %v", n.DeliverAt, second)
	}
	if !n.DeliveredAt.IsZero() {
		t.Fatalf("delivered at not cleared: %+v", n)
	}
}

func TestUpsertKeepsDeliveredOccurrenceTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now()

	if err := s.Upsert(ctx, Notification{ID: "n1", Title: "t", Body: "b", DeliverAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkDelivered(ctx, "n1", at); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// same id, same deliver_at: a schedule racing its own dispatch
	if err := s.Upsert(ctx, Notification{ID: "n1", Title: "race", Body: "b", DeliverAt: at}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != StatusDelivered || n.Title != "t" {
		t.Fatalf("delivered occurrence was reopened: %+v", n)
	}
}

func TestListDueSkipsFutureAndNonPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(s.Upsert(ctx, Notification{ID: "due", Title: "t", Body: "b", DeliverAt: now.Add(-time.Minute)}))
	must(s.Upsert(ctx, Notification{ID: "future", Title: "t", Body: "b", DeliverAt: now.Add(time.Hour)}))
	must(s.Upsert(ctx, Notification{ID: "canceled", Title: "t", Body: "b", DeliverAt: now.Add(-time.Minute)}))
	must(s.CancelPending(ctx, "canceled"))

	due, err := s.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("unexpected due set: %+v", due)
	}
}

func TestDispatchDueDeliversOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := &recordingDeliverer{}
	sched := NewLocalScheduler(s, d)

	if err := sched.ScheduleAt(ctx, "n1", time.Now().Add(-time.Second), "Missed task", "File taxes is overdue", ""); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	sched.DispatchDue(ctx)
	waitFor(t, func() bool { return len(d.ids()) == 1 })

	sched.DispatchDue(ctx)
	time.Sleep(50 * time.Millisecond)
	if got := d.ids(); len(got) != 1 {
		t.Fatalf("delivered %d times, want 1", len(got))
	}

	n, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != StatusDelivered || n.DeliveredAt.IsZero() {
		t.Fatalf("not marked delivered: %+v", n)
	}
}

func TestDeliveryFailureExhaustsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d := &recordingDeliverer{failWith: fmt.Errorf("surface unavailable")}
	sched := NewLocalScheduler(s, d)

	if err := sched.ScheduleAt(ctx, "n1", time.Now().Add(-time.Second), "t", "b", ""); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	for i := 0; i < maxDeliverAttempts; i++ {
		sched.DispatchDue(ctx)
		want := i + 1
		waitFor(t, func() bool {
			n, err := s.Get(ctx, "n1")
			return err == nil && n.Attempt == want
		})
	}

	n, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != StatusFailed {
		t.Fatalf("status = %q after %d failures", n.Status, maxDeliverAttempts)
	}
	if n.LastError == "" {
		t.Fatal("last error not recorded")
	}
}

func TestCancelOnlyTouchesPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, Notification{ID: "n1", Title: "t", Body: "b", DeliverAt: time.Now()}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.MarkDelivered(ctx, "n1", time.Now()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := s.CancelPending(ctx, "n1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	n, err := s.Get(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != StatusDelivered {
		t.Fatalf("cancel changed a delivered row: %q", n.Status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
