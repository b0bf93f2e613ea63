package queue

import (
	"context"
	"testing"
	"time"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg, err := NewMessage(TypeApprovalDecided, map[string]string{"team": "T1", "week": "2024-W10"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	raw, err := serialize(msg)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	var body map[string]string
	if err := back.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Type != TypeApprovalDecided || body["week"] != "2024-W10" {
		t.Fatalf("unexpected message %+v %v", back, body)
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"checkin|abc", `{"body":{}}`} {
		if _, err := deserialize(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	msg, _ := NewMessage(TypeAttendanceRecorded, map[string]string{"user": "alice"})
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-ch:
		if got.Type != TypeAttendanceRecorded {
			t.Fatalf("unexpected type %s", got.Type)
		}
	case <-ctx.Done():
		t.Fatalf("message not delivered")
	}
}
