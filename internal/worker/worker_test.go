package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"kkn/internal/attendance"
	"kkn/internal/queue"
)

type fakeHistory struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (f *fakeHistory) RecordHistory(_ context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestHandleDispatchesByType(t *testing.T) {
	h := &fakeHistory{}
	p := New(h)
	ctx := context.Background()

	decided, _ := queue.NewMessage(queue.TypeApprovalDecided, map[string]string{"team": "T1"})
	recorded, _ := queue.NewMessage(queue.TypeAttendanceRecorded, attendance.RecordedEvent{Team: "T1", User: "alice"})
	for _, msg := range []queue.Message{decided, recorded, {Type: "checkin", Body: []byte(`"x"`)}} {
		if err := p.Handle(ctx, msg); err != nil {
			t.Fatalf("handle %s: %v", msg.Type, err)
		}
	}
	if h.count() != 1 {
		t.Fatalf("only decided events reach the history, got %d", h.count())
	}
	if err := p.Handle(ctx, queue.Message{Type: queue.TypeAttendanceRecorded, Body: []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	h := &fakeHistory{}
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(h).Run(ctx, q) }()

	msg, _ := queue.NewMessage(queue.TypeApprovalDecided, map[string]string{"team": "T1"})
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for h.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.count() != 1 {
		t.Fatalf("expected message to be handled")
	}
}
